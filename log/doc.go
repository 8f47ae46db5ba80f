// Package log provides the leveled logging interface shared by agents, model
// clients and step stores.
//
// The default backend is kataras/golog wrapped by GologLogger. Agents derive a
// prefixed logger per agent name with WithPrefix, so interleaved output from a
// manager and its managed agents stays readable:
//
//	logger := log.WithPrefix(log.NewWriterLogger(os.Stderr, log.LevelFromVerbosity(2)), "manager_code_agent")
//	logger.Info("step %d finished", 1)
//
// Tests usually pass &log.NoOpLogger{}.
package log
