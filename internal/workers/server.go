// Package workers runs the Asynq worker server: the task mux that drives
// the sync engines' actual network I/O off the ticker goroutines that
// schedule it.
package workers

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/queue"
)

// Server is the Asynq worker server.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer wires every task type this hub enqueues to its handler.
func NewServer(redisOpt asynq.RedisClientOpt, concurrency int, attendance *AttendanceHandler, users *UserHandler) *Server {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().
					Err(err).
					Str("task_type", task.Type()).
					Bytes("payload", task.Payload()).
					Msg("worker task failed")
			}),
			Logger: &asynqLogger{},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeAttendanceDrain, attendance.HandleDrain)
	mux.HandleFunc(queue.TypeAttendanceRetry, attendance.HandleRetry)
	mux.HandleFunc(queue.TypeCleanupFailed, attendance.HandleCleanup)
	mux.HandleFunc(queue.TypeUserPull, users.HandlePull)
	mux.HandleFunc(queue.TypeUserPush, users.HandlePush)

	return &Server{server: server, mux: mux}
}

// Start runs the server, blocking until Stop is called.
func (s *Server) Start() error {
	log.Info().Msg("workers: starting asynq server")
	return s.server.Run(s.mux)
}

// Stop gracefully shuts the server down, waiting for in-flight tasks.
func (s *Server) Stop() {
	log.Info().Msg("workers: stopping asynq server")
	s.server.Shutdown()
}

type asynqLogger struct{}

func (l *asynqLogger) Debug(args ...interface{}) { log.Debug().Msgf("%v", args) }
func (l *asynqLogger) Info(args ...interface{})  { log.Info().Msgf("%v", args) }
func (l *asynqLogger) Warn(args ...interface{})  { log.Warn().Msgf("%v", args) }
func (l *asynqLogger) Error(args ...interface{}) { log.Error().Msgf("%v", args) }
func (l *asynqLogger) Fatal(args ...interface{}) { log.Fatal().Msgf("%v", args) }
