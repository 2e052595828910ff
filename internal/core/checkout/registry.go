package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RegistryConfig struct {
	Session Config
	// RetainTerminal é quanto tempo uma sessão encerrada continua consultável.
	RetainTerminal time.Duration
	// IdleTimeout descarta sessões pagas que ninguém mais consulta.
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// Registry guarda os controladores ativos desta réplica e publica a última
// versão de cada sessão no SnapshotStore sem bloquear o controlador.
type Registry struct {
	cfg    RegistryConfig
	deps   Dependencies
	store  ports.SnapshotStore
	events ports.EventPublisher
	log    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*entry

	pubMu   sync.Mutex
	pending map[string]domain.SessionSnapshot
	marks   map[string]mark
	outbox  []SessionEvent
	signal  chan struct{}
}

// mark é a última versão vista de cada sessão, usada para detectar transições.
type mark struct {
	version uint64
	state   domain.SessionState
}

type RegistryOption func(*Registry)

// WithEventPublisher publica os marcos das sessões (pagamento, expiração,
// falha, conta criada) além dos snapshots.
func WithEventPublisher(p ports.EventPublisher) RegistryOption {
	return func(r *Registry) { r.events = p }
}

type entry struct {
	ctrl     *Controller
	mu       sync.Mutex
	lastSeen time.Time
}

func NewRegistry(cfg RegistryConfig, deps Dependencies, store ports.SnapshotStore, opts ...RegistryOption) *Registry {
	if cfg.RetainTerminal <= 0 {
		cfg.RetainTerminal = 10 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	r := &Registry{
		cfg:      cfg,
		deps:     deps,
		store:    store,
		log:      deps.Logger,
		sessions: make(map[string]*entry),
		pending:  make(map[string]domain.SessionSnapshot),
		marks:    make(map[string]mark),
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open cria uma sessão para o token e executa LoadSession. Falhas que deixam a
// sessão em Loading descartam o controlador; NotFound e Expired mantêm a
// sessão para que o cliente veja o estado terminal.
func (r *Registry) Open(ctx context.Context, token string) (*Controller, error) {
	id := uuid.NewString()
	deps := r.deps
	deps.Logger = r.log.With(zap.String("token", token))
	ctrl := NewController(id, r.cfg.Session, deps, r.enqueue)

	e := &entry{ctrl: ctrl, lastSeen: r.deps.Now()}
	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	if err := ctrl.LoadSession(ctx, token); err != nil {
		if ctrl.State() == domain.StateLoading {
			r.remove(context.Background(), id)
			return nil, err
		}
		return ctrl, err
	}
	return ctrl, nil
}

// Get devolve o controlador local e marca a sessão como vista.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	e.mu.Lock()
	e.lastSeen = r.deps.Now()
	e.mu.Unlock()
	return e.ctrl, nil
}

// Snapshot procura a sessão localmente e, se ela pertence a outra réplica, no store.
func (r *Registry) Snapshot(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	if ctrl, err := r.Get(id); err == nil {
		return ctrl.Snapshot(), nil
	}
	if r.store == nil {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := r.store.Get(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if snap == nil {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return *snap, nil
}

// Close encerra a sessão (navegação para fora, aba fechada).
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.RLock()
	_, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.remove(ctx, id)
	return nil
}

func (r *Registry) remove(ctx context.Context, id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	e.ctrl.Close()

	r.pubMu.Lock()
	delete(r.pending, id)
	delete(r.marks, id)
	r.pubMu.Unlock()
	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			r.log.Warn("falha ao remover snapshot", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// Len é o número de sessões ativas nesta réplica.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// enqueue guarda só a versão mais nova de cada sessão, registra os eventos da
// transição e acorda o publicador. Snapshots fora de ordem são descartados.
func (r *Registry) enqueue(snap domain.SessionSnapshot) {
	if r.store == nil && r.events == nil {
		return
	}
	r.pubMu.Lock()
	last := r.marks[snap.SessionID]
	if snap.Version <= last.version {
		r.pubMu.Unlock()
		return
	}
	prev := last.state
	if prev == "" {
		prev = domain.StateLoading
	}
	r.marks[snap.SessionID] = mark{version: snap.Version, state: snap.State}
	if r.store != nil {
		r.pending[snap.SessionID] = snap
	}
	if r.events != nil {
		r.outbox = append(r.outbox, eventsFor(prev, snap)...)
	}
	r.pubMu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Run publica snapshots e descarta sessões antigas até ctx ser cancelado.
// Ao sair, encerra todas as sessões.
func (r *Registry) Run(ctx context.Context) {
	reap := time.NewTicker(r.cfg.ReapInterval)
	defer reap.Stop()
	defer r.Shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.signal:
			r.flush(ctx)
		case <-reap.C:
			r.reap(ctx)
		}
	}
}

func (r *Registry) flush(ctx context.Context) {
	r.pubMu.Lock()
	batch := r.pending
	r.pending = make(map[string]domain.SessionSnapshot, len(batch))
	outbox := r.outbox
	r.outbox = nil
	r.pubMu.Unlock()

	for _, ev := range outbox {
		r.publish(ctx, ev)
	}
	for _, snap := range batch {
		saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.store.Save(saveCtx, snap)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("falha ao publicar snapshot", zap.String("session_id", snap.SessionID), zap.Error(err))
		}
	}
}

func (r *Registry) publish(ctx context.Context, ev SessionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("falha ao serializar evento", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.events.Publish(pubCtx, ev.Type, payload, ev.SessionID); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("falha ao publicar evento", zap.String("type", ev.Type), zap.String("session_id", ev.SessionID), zap.Error(err))
	}
}

func (r *Registry) reap(ctx context.Context) {
	now := r.deps.Now()
	var stale []string
	r.mu.RLock()
	for id, e := range r.sessions {
		e.mu.Lock()
		idle := now.Sub(e.lastSeen)
		e.mu.Unlock()
		switch state := e.ctrl.State(); {
		case state.Terminal() && idle > r.cfg.RetainTerminal:
			stale = append(stale, id)
		case idle > r.cfg.IdleTimeout:
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.remove(ctx, id)
	}
	if len(stale) > 0 {
		r.log.Info("sessões descartadas", zap.Int("count", len(stale)))
	}
}

// Shutdown encerra todas as sessões locais, parando timers e pollers.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range entries {
		e.ctrl.Close()
	}
}
