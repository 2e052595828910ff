package checkout

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
)

func TestTaskStopWaitsForGoroutine(t *testing.T) {
	var runs atomic.Int32
	task := StartTask(context.Background(), Every(time.Millisecond), func(context.Context) {
		runs.Add(1)
	})
	waitFor(t, "três execuções", func() bool { return runs.Load() >= 3 })
	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("Stop retornou antes da goroutine terminar")
	}
	after := runs.Load()
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != after {
		t.Error("tarefa executou depois de Stop")
	}
}

func TestTaskCancelFromInsideFn(t *testing.T) {
	var task *Task
	ready := make(chan struct{})
	var runs atomic.Int32
	task = StartTask(context.Background(), Every(time.Millisecond), func(context.Context) {
		<-ready
		runs.Add(1)
		task.Cancel()
	})
	close(ready)

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tarefa não terminou após Cancel")
	}
	if n := runs.Load(); n != 1 {
		t.Errorf("execuções = %d, esperava 1", n)
	}
}

func TestNilTaskIsSafe(t *testing.T) {
	var task *Task
	task.Cancel()
	task.Stop()
}

func backgroundController(t *testing.T, api *fakeAPI) *Controller {
	t.Helper()
	c := NewController("sess-bg", Config{
		TickInterval: time.Hour,
		PollInterval: 5 * time.Millisecond,
	}, Dependencies{
		Invoices:    api,
		Instruments: api,
		Eligibility: api,
		Accounts:    api,
		Now:         func() time.Time { return testNow },
	}, nil)
	t.Cleanup(c.Close)
	if err := c.LoadSession(context.Background(), "tok-bg"); err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	return c
}

func tasks(c *Controller) (timer, poller *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer, c.poller
}

func waitDone(t *testing.T, what string, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("%s continua rodando", what)
	}
}

func TestPaymentStopsTimerAndPoller(t *testing.T) {
	var paid atomic.Bool
	api := &fakeAPI{CheckSettlementFunc: func(ctx context.Context, token string) (ports.SettlementStatus, error) {
		return ports.SettlementStatus{Paid: paid.Load()}, nil
	}}
	c := backgroundController(t, api)
	if err := c.SubmitPayerData(context.Background(), maria(), fullAddress(), true); err != nil {
		t.Fatalf("SubmitPayerData: %v", err)
	}
	timer, poller := tasks(c)
	if timer == nil || poller == nil {
		t.Fatal("timer e poller deveriam estar ativos em AwaitingPayment")
	}
	waitFor(t, "primeira verificação", func() bool { return api.statusCalls.Load() >= 1 })

	paid.Store(true)
	waitFor(t, "pagamento detectado", func() bool { return c.State() == domain.StatePaid })
	waitDone(t, "poller", poller)
	waitDone(t, "timer", timer)

	calls := api.statusCalls.Load()
	time.Sleep(20 * time.Millisecond)
	if api.statusCalls.Load() != calls {
		t.Error("poller continuou consultando depois do pagamento")
	}
}

func TestExpiryStopsPoller(t *testing.T) {
	api := &fakeAPI{}
	c := backgroundController(t, api)
	if err := c.SubmitPayerData(context.Background(), maria(), fullAddress(), true); err != nil {
		t.Fatalf("SubmitPayerData: %v", err)
	}
	_, poller := tasks(c)
	c.mu.Lock()
	c.sess.RemainingSeconds = 1
	c.mu.Unlock()
	c.Tick()
	if got := c.State(); got != domain.StateExpired {
		t.Fatalf("estado = %s, esperava Expired", got)
	}
	waitDone(t, "poller", poller)
}

func TestCloseStopsBackgroundTasks(t *testing.T) {
	c := backgroundController(t, &fakeAPI{})
	timer, _ := tasks(c)
	if timer == nil {
		t.Fatal("timer deveria estar ativo em CollectingIdentity")
	}
	c.Close()
	select {
	case <-timer.Done():
	default:
		t.Fatal("Close retornou com o timer ainda ativo")
	}
	c.Close()
	if err := c.LoadSession(context.Background(), "tok"); err == nil {
		t.Error("sessão encerrada não deveria aceitar LoadSession")
	}
}

func TestEligibilityRetriedInBackground(t *testing.T) {
	var eligible atomic.Int32
	api := &fakeAPI{
		CheckSettlementFunc: func(ctx context.Context, token string) (ports.SettlementStatus, error) {
			return ports.SettlementStatus{Paid: true}, nil
		},
		CanConvertFunc: func(ctx context.Context, token string) (bool, error) {
			if eligible.Add(1) < 3 {
				return false, domain.ErrTransientNetwork
			}
			return true, nil
		},
	}
	c := backgroundController(t, api)
	if err := c.SubmitPayerData(context.Background(), maria(), fullAddress(), true); err != nil {
		t.Fatalf("SubmitPayerData: %v", err)
	}
	waitFor(t, "oferta de conversão", func() bool { return c.State() == domain.StateOfferingConversion })

	c.mu.Lock()
	retry := c.conversionRetry
	c.mu.Unlock()
	if retry != nil {
		t.Error("nova tentativa deveria parar depois da oferta")
	}
	if n := api.eligibilityCalls.Load(); n != 3 {
		t.Errorf("elegibilidade consultada %d vezes, esperava 3", n)
	}
}
