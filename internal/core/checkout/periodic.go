package checkout

import (
	"context"
	"time"
)

// Task é uma tarefa periódica com cancelamento explícito.
// Cancel apenas sinaliza; Stop sinaliza e espera a goroutine terminar.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartTask executa fn repetidamente. O intervalo até a próxima execução é
// consultado em next a cada volta, o que permite backoff sem recriar a tarefa.
func StartTask(parent context.Context, next func() time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		timer := time.NewTimer(next())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				fn(ctx)
				if ctx.Err() != nil {
					return
				}
				timer.Reset(next())
			}
		}
	}()
	return t
}

// Every é o intervalo fixo usado pelo timer de expiração.
func Every(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

// Cancel pode ser chamado de dentro da própria tarefa.
func (t *Task) Cancel() {
	if t != nil {
		t.cancel()
	}
}

// Stop não deve ser chamado de dentro de fn.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// Done fecha quando a goroutine da tarefa termina.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
