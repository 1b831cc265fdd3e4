// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design Decisions
//
//   - Singleton: Una sola instancia global inicializada con Init().
//   - Context Scoping: cada request lleva su logger "scoped" (request_id, kid, process_id)
//     sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - File sink opcional con rotación diaria (file-rotatelogs).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   cfg.Env,
//	    Level: cfg.Log.Level,
//	})
//	defer logger.Sync()
//
// En handlers/services (con contexto):
//
//	log := logger.From(ctx)
//	log.Info("token issued", logger.ProcessID(pid), logger.KeyID(kid))
//
// Sin contexto (fallback a singleton):
//
//	logger.L().Info("application started")
package logger
