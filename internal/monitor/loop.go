// Package monitor runs the private-message polling loop: session selection,
// dedup, reply resolution and dispatch, follower greetings, and the
// resilience ladder (transport reinit, soft restart, supervised engine
// restarts).
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Wu-ChengLiang/BiliGo/internal/bili"
	"github.com/Wu-ChengLiang/BiliGo/internal/dedup"
	"github.com/Wu-ChengLiang/BiliGo/internal/events"
	"github.com/Wu-ChengLiang/BiliGo/internal/follow"
	"github.com/Wu-ChengLiang/BiliGo/internal/reply"
	"github.com/Wu-ChengLiang/BiliGo/internal/rules"
	"github.com/Wu-ChengLiang/BiliGo/internal/settings"
)

// Loop pacing and resilience knobs.
const (
	minTickPause      = 10 * time.Millisecond
	heartbeatPeriod   = 60 * time.Second
	maintenancePeriod = 300 * time.Second
	cleanupEvery      = 10

	sessionListAttempts = 3
	selfIDAttempts      = 3
	retryPause          = 300 * time.Millisecond

	// Consecutive session-list failures tolerated before the transport is
	// rebuilt with fresh credentials.
	maxConsecutiveErrors = 5

	softRestartAttempts = 3

	maxEngineRestarts = 3
	engineBackoffStep = 5 * time.Second
	maxEngineBackoff  = 30 * time.Second

	// Sessions whose last activity is at most this old are polled even when
	// their timestamp is not ahead of the recorded marker.
	activeWindow = 300 * time.Second

	// Upper bound of sessions handled in one tick.
	maxSessionsPerTick = 30
)

// Transport is the Bilibili API surface the loop depends on.
type Transport interface {
	ListSessions(ctx context.Context) ([]bili.Session, error)
	LatestMessage(ctx context.Context, talkerID int64) (*bili.Message, error)
	SendText(ctx context.Context, receiverID int64, text string) (bili.SendResult, error)
	SendImage(ctx context.Context, receiverID int64, imagePath string) (bili.SendResult, error)
	SelfID(ctx context.Context) (int64, error)
	RecentFollowers(ctx context.Context, limit int) ([]bili.Follower, error)
	VerifySent(ctx context.Context, talkerID int64, expected string) bool
}

// TransportFactory builds a fresh transport from the current credentials.
// Called on engine start and on every reinitialization.
type TransportFactory func() Transport

// Monitor owns the polling goroutine. All mutable loop state lives in a
// loopState owned by that single goroutine; Status exposes a locked snapshot
// for the admin API.
type Monitor struct {
	logger   *slog.Logger
	settings *settings.Service
	rules    *rules.Service
	resolver *reply.Resolver
	ring     *events.Ring
	factory  TransportFactory
	now      func() time.Time
	pause    time.Duration

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
	status  Status
}

// loopState is the per-engine-run state, owned by the polling goroutine.
type loopState struct {
	transport Transport
	selfID    int64
	cache     *dedup.Cache
	tracker   *follow.Tracker
	gate      *SendGate

	// Epoch of the current engine run; with only-new mode on, messages
	// older than this are baselined without a reply.
	startedAt int64

	lastHeartbeat   time.Time
	lastMaintenance time.Time
	lastReply       time.Time
	consecutiveErrs int
	softFails       int
	sinceCleanup    int
}

// New creates a stopped monitor.
func New(log *slog.Logger, svc *settings.Service, rulesSvc *rules.Service, resolver *reply.Resolver, ring *events.Ring, factory TransportFactory) *Monitor {
	return &Monitor{
		logger:   log.With(slog.String("service", "monitor")),
		settings: svc,
		rules:    rulesSvc,
		resolver: resolver,
		ring:     ring,
		factory:  factory,
		now:      time.Now,
		pause:    retryPause,
	}
}

// Start launches the polling goroutine. It fails fast when credentials are
// missing or the loop is already running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	if !m.settings.Get().HasCredentials() {
		return ErrNoCredentials
	}

	m.running = true
	m.stopped = false
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.status = Status{Running: true, StartedAt: m.now()}

	m.ring.Append(events.LevelInfo, "monitoring started")
	go m.run(m.stopCh, m.done)
	return nil
}

// Stop signals the loop and waits for it to exit or for ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	if !m.stopped {
		m.stopped = true
		close(m.stopCh)
	}
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		m.ring.Append(events.LevelInfo, "monitoring stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the loop state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// run supervises the engine: transient failures restart it with a capped
// backoff, credential rejections and exhausted restart budgets stop it for
// good.
func (m *Monitor) run(stopCh chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.running = false
		m.status.Running = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	restarts := 0
	for {
		err := m.engine(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrAuthInvalid) || errors.Is(err, ErrRestartFailed) {
			m.fail(err)
			return
		}

		restarts++
		if restarts > maxEngineRestarts {
			m.fail(fmt.Errorf("engine restart budget exhausted: %w", err))
			return
		}
		backoff := time.Duration(restarts) * engineBackoffStep
		if backoff > maxEngineBackoff {
			backoff = maxEngineBackoff
		}
		m.logger.Error("engine stopped, restarting",
			slog.Any("error", err),
			slog.Int("attempt", restarts),
			slog.Duration("backoff", backoff),
		)
		m.ring.Append(events.LevelWarning, fmt.Sprintf("engine restarting after error: %v", err))
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (m *Monitor) fail(err error) {
	m.logger.Error("monitoring stopped permanently", slog.Any("error", err))
	m.ring.Append(events.LevelError, fmt.Sprintf("monitoring stopped: %v", err))
	m.mu.Lock()
	m.status.FatalReason = err.Error()
	m.mu.Unlock()
}

// engine runs one full polling session until stop or an unrecoverable error.
// Panics in tick handling surface as errors so the supervisor can decide.
func (m *Monitor) engine(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	st, err := m.connect(ctx)
	if err != nil {
		return err
	}
	if err := m.rules.Reload(); err != nil {
		m.logger.Warn("rule reload failed", slog.Any("error", err))
	}
	m.logger.Info("engine started",
		slog.Int64("self_id", st.selfID),
		slog.Int("rules", m.rules.Index().Size()),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}
		started := m.now()
		if err := m.tick(ctx, st); err != nil {
			return err
		}
		pause := m.settings.Get().CheckPeriod() - m.now().Sub(started)
		if pause < minTickPause {
			pause = minTickPause
		}
		if !sleep(ctx, pause) {
			return nil
		}
	}
}

// connect builds the transport, probes credentials, and seeds fresh loop
// state.
func (m *Monitor) connect(ctx context.Context) (*loopState, error) {
	cfg := m.settings.Get()
	transport := m.factory()

	selfID, err := m.resolveSelfID(ctx, transport)
	if err != nil {
		return nil, err
	}

	st := &loopState{
		transport: transport,
		selfID:    selfID,
		cache:     dedup.NewCache(),
		gate:      NewSendGate(cfg.SendPeriod()),
	}
	st.tracker = follow.NewTracker(m.logger, func(ctx context.Context, limit int) ([]follow.Record, error) {
		followers, err := st.transport.RecentFollowers(ctx, limit)
		if err != nil {
			return nil, err
		}
		records := make([]follow.Record, 0, len(followers))
		for _, f := range followers {
			records = append(records, follow.Record{Mid: f.Mid, Name: f.Uname, FollowedAt: f.Mtime})
		}
		return records, nil
	})
	st.tracker.SetInterval(cfg.FollowCheckPeriod())

	now := m.now()
	st.startedAt = now.Unix()
	st.lastHeartbeat = now
	st.lastMaintenance = now
	st.lastReply = now

	m.mu.Lock()
	m.status.SelfID = selfID
	m.mu.Unlock()
	return st, nil
}

func (m *Monitor) resolveSelfID(ctx context.Context, transport Transport) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= selfIDAttempts; attempt++ {
		selfID, err := transport.SelfID(ctx)
		if err == nil {
			return selfID, nil
		}
		if bili.IsAuthError(err) {
			return 0, fmt.Errorf("%w: %v", ErrAuthInvalid, err)
		}
		lastErr = err
		if attempt < selfIDAttempts && !sleep(ctx, m.pause) {
			break
		}
	}
	return 0, fmt.Errorf("resolve self uid: %w", lastErr)
}

// tick is one polling cycle.
func (m *Monitor) tick(ctx context.Context, st *loopState) error {
	now := m.now()
	cfg := m.settings.Get()
	st.gate.SetInterval(cfg.SendPeriod())

	if now.Sub(st.lastHeartbeat) >= heartbeatPeriod {
		st.lastHeartbeat = now
		status := m.Status()
		m.logger.Info("heartbeat",
			slog.Int64("processed", status.Processed),
			slog.Int64("replies", status.Replies),
			slog.Int64("errors", status.Errors),
			slog.Int("conversations", st.cache.Conversations()),
		)
	}

	if now.Sub(st.lastMaintenance) >= maintenancePeriod {
		st.lastMaintenance = now
		evicted := st.cache.EvictExpired(now)
		st.cache.CapacityTrim()
		if err := m.rules.Reload(); err != nil {
			m.logger.Warn("rule reload failed", slog.Any("error", err))
		}
		m.logger.Debug("maintenance pass", slog.Int("evicted", evicted))
	}

	if now.Sub(st.lastReply) >= cfg.RestartPeriod() {
		if err := m.softRestart(ctx, st); err != nil {
			return err
		}
	}

	if cfg.FollowReplyEnabled || cfg.UnfollowReplyEnabled {
		if err := m.handleFollowers(ctx, st, cfg); err != nil {
			return err
		}
	}

	sessions, err := m.listSessions(ctx, st)
	if err != nil {
		return m.handleListFailure(ctx, st, err)
	}
	st.consecutiveErrs = 0

	for _, session := range m.selectSessions(st, sessions) {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.processSession(ctx, st, cfg, session); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) listSessions(ctx context.Context, st *loopState) ([]bili.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= sessionListAttempts; attempt++ {
		sessions, err := st.transport.ListSessions(ctx)
		if err == nil {
			return sessions, nil
		}
		lastErr = err
		if bili.IsAuthError(err) {
			break
		}
		if attempt < sessionListAttempts && !sleep(ctx, m.pause) {
			break
		}
	}
	return nil, lastErr
}

// handleListFailure counts consecutive session-list failures and rebuilds the
// transport when the remote looks broken. Auth-class errors skip the counter.
func (m *Monitor) handleListFailure(ctx context.Context, st *loopState, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	m.noteError()
	if bili.IsAuthError(err) {
		m.logger.Warn("session list rejected, reinitializing transport", slog.Any("error", err))
		return m.reinitTransport(ctx, st)
	}

	st.consecutiveErrs++
	m.logger.Warn("session list failed",
		slog.Any("error", err),
		slog.Int("consecutive", st.consecutiveErrs),
	)
	if st.consecutiveErrs > maxConsecutiveErrors {
		return m.reinitTransport(ctx, st)
	}
	return nil
}

// reinitTransport swaps in a fresh transport built from current credentials.
// A failure here bubbles up to the engine supervisor.
func (m *Monitor) reinitTransport(ctx context.Context, st *loopState) error {
	transport := m.factory()
	selfID, err := m.resolveSelfID(ctx, transport)
	if err != nil {
		return fmt.Errorf("transport reinit: %w", err)
	}
	if _, err := transport.ListSessions(ctx); err != nil {
		return fmt.Errorf("transport reinit probe: %w", err)
	}

	st.transport = transport
	st.selfID = selfID
	st.consecutiveErrs = 0
	m.logger.Info("transport reinitialized", slog.Int64("self_id", selfID))
	m.ring.Append(events.LevelWarning, "transport reinitialized")
	return nil
}

// softRestart handles the inactivity watchdog: rebuild the transport and drop
// all per-run caches so a wedged session starts clean. Three consecutive
// failures stop monitoring permanently.
func (m *Monitor) softRestart(ctx context.Context, st *loopState) error {
	m.logger.Warn("no outbound activity within watchdog window, soft restarting",
		slog.Int("failures", st.softFails),
	)
	m.ring.Append(events.LevelWarning, "inactivity watchdog triggered soft restart")

	if err := m.reinitTransport(ctx, st); err != nil {
		st.softFails++
		if st.softFails >= softRestartAttempts {
			return fmt.Errorf("%w: %v", ErrRestartFailed, err)
		}
		m.logger.Error("soft restart failed", slog.Any("error", err), slog.Int("failures", st.softFails))
		st.lastReply = m.now()
		return nil
	}

	st.cache.Reset()
	st.tracker.Reset()
	if err := m.rules.Reload(); err != nil {
		m.logger.Warn("rule reload failed", slog.Any("error", err))
	}
	st.softFails = 0
	st.lastReply = m.now()
	st.startedAt = st.lastReply.Unix()
	m.ring.Append(events.LevelSuccess, "soft restart completed")
	return nil
}

func (m *Monitor) handleFollowers(ctx context.Context, st *loopState, cfg settings.Settings) error {
	st.tracker.SetInterval(cfg.FollowCheckPeriod())
	changes, err := st.tracker.DetectChanges(ctx, cfg.FollowReplyEnabled, cfg.UnfollowReplyEnabled)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("follower check failed", slog.Any("error", err))
		}
		return nil
	}

	for _, rec := range changes.NewFollows {
		sent, err := m.sendConfigured(ctx, st, rec.Mid,
			cfg.FollowReplyType, cfg.FollowReplyMessage, cfg.FollowReplyImage)
		if err != nil {
			return err
		}
		if sent {
			st.tracker.MarkWelcomed(rec.Mid)
			m.ring.Append(events.LevelSuccess, fmt.Sprintf("welcomed new follower %s (%d)", rec.Name, rec.Mid))
		}
	}
	for _, mid := range changes.Unfollows {
		sent, err := m.sendConfigured(ctx, st, mid,
			cfg.UnfollowReplyType, cfg.UnfollowReplyMessage, cfg.UnfollowReplyImage)
		if err != nil {
			return err
		}
		if sent {
			m.ring.Append(events.LevelInfo, fmt.Sprintf("sent farewell to %d", mid))
		}
	}
	return nil
}

// sendConfigured delivers a settings-driven greeting. Image greetings fall
// back to text when the upload path fails. Auth rejections from the remote
// are returned so the loop stops on the first dead-credential send.
func (m *Monitor) sendConfigured(ctx context.Context, st *loopState, mid int64, kind, message, imagePath string) (bool, error) {
	rep := &reply.Reply{Text: message, Kind: settings.ReplyTypeText, Source: "greeting"}
	if kind == settings.ReplyTypeImage && imagePath != "" {
		rep.Kind = settings.ReplyTypeImage
		rep.ImagePath = imagePath
	}
	if rep.Kind == settings.ReplyTypeText && rep.Text == "" {
		return false, nil
	}
	if err := m.dispatch(ctx, st, mid, rep); err != nil {
		return false, err
	}
	return true, nil
}

// selectSessions orders sessions by recency and keeps those with either a
// timestamp ahead of the recorded marker or recent activity, capped per tick.
func (m *Monitor) selectSessions(st *loopState, sessions []bili.Session) []bili.Session {
	now := m.now().Unix()
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastTimestamp() > sessions[j].LastTimestamp()
	})

	selected := make([]bili.Session, 0, maxSessionsPerTick)
	for _, s := range sessions {
		if s.TalkerID <= 0 || s.TalkerID == st.selfID {
			continue
		}
		ts := s.LastTimestamp()
		if ts == 0 {
			continue
		}
		if ts <= st.cache.LastSeen(s.TalkerID) && now-ts >= int64(activeWindow.Seconds()) {
			continue
		}
		selected = append(selected, s)
		if len(selected) == maxSessionsPerTick {
			break
		}
	}
	return selected
}

// processSession handles the newest message of one conversation.
func (m *Monitor) processSession(ctx context.Context, st *loopState, cfg settings.Settings, session bili.Session) error {
	talkerID := session.TalkerID

	msg, err := st.transport.LatestMessage(ctx, talkerID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("message fetch failed", slog.Int64("talker", talkerID), slog.Any("error", err))
			m.noteError()
		}
		return nil
	}
	if msg == nil {
		return nil
	}

	ts := msg.Timestamp
	lastSeen := st.cache.LastSeen(talkerID)

	// With only-new enabled, messages predating the engine start are
	// baselined without a reply; only traffic after startup is answered.
	if cfg.OnlyReplyNewMessages && ts < st.startedAt {
		st.cache.Advance(talkerID, ts)
		return nil
	}
	if ts <= lastSeen {
		return nil
	}
	st.cache.Advance(talkerID, ts)

	if msg.SenderUID == st.selfID {
		return nil
	}
	text := msg.Text()
	if text == "" {
		return nil
	}

	fp := dedup.NewFingerprint(talkerID, ts, text)
	if st.cache.Seen(fp) {
		return nil
	}
	st.cache.MarkSeen(fp)
	m.noteProcessed()

	st.sinceCleanup++
	if st.sinceCleanup >= cleanupEvery {
		st.sinceCleanup = 0
		st.cache.EvictExpired(m.now())
		st.cache.CapacityTrim()
	}

	rep := m.resolver.Resolve(ctx, msg.SenderUID, "", text)
	if rep == nil {
		m.logger.Debug("no reply resolved", slog.Int64("talker", talkerID))
		return nil
	}
	return m.dispatch(ctx, st, talkerID, rep)
}

// dispatch sends one resolved reply through the rate gate and classifies the
// remote result. Auth rejections are fatal; rate limits are logged and the
// loop moves on.
func (m *Monitor) dispatch(ctx context.Context, st *loopState, talkerID int64, rep *reply.Reply) error {
	if err := st.gate.Wait(ctx); err != nil {
		return nil
	}

	var res bili.SendResult
	var err error
	if rep.Kind == settings.ReplyTypeImage && rep.ImagePath != "" {
		res, err = st.transport.SendImage(ctx, talkerID, rep.ImagePath)
		if (err != nil || !res.OK()) && rep.Text != "" {
			// Image delivery is best effort; the text body still goes out.
			m.logger.Warn("image send failed, falling back to text",
				slog.Int64("talker", talkerID), slog.Any("error", err), slog.Int("code", res.Code))
			res, err = st.transport.SendText(ctx, talkerID, rep.Text)
		}
	} else {
		res, err = st.transport.SendText(ctx, talkerID, rep.Text)
	}
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("send failed", slog.Int64("talker", talkerID), slog.Any("error", err))
			m.noteError()
		}
		return nil
	}

	switch {
	case res.OK():
		m.confirmDelivery(ctx, st, talkerID, rep)
		return nil
	case res.RateLimited():
		m.logger.Warn("send rate limited", slog.Int64("talker", talkerID))
		m.ring.Append(events.LevelWarning, fmt.Sprintf("rate limited sending to %d", talkerID))
		return nil
	case res.AuthInvalid():
		return fmt.Errorf("%w: send returned code %d", ErrAuthInvalid, res.Code)
	default:
		m.logger.Warn("send rejected",
			slog.Int64("talker", talkerID), slog.Int("code", res.Code), slog.String("message", res.Message))
		m.noteError()
		return nil
	}
}

// confirmDelivery waits half a tick and checks the conversation tail for the
// sent reply. Verification is advisory; the reply counts either way.
func (m *Monitor) confirmDelivery(ctx context.Context, st *loopState, talkerID int64, rep *reply.Reply) {
	if rep.Kind == settings.ReplyTypeText && rep.Text != "" {
		wait := m.settings.Get().CheckPeriod() / 2
		if wait < minTickPause {
			wait = minTickPause
		}
		if sleep(ctx, wait) && !st.transport.VerifySent(ctx, talkerID, rep.Text) {
			m.logger.Warn("sent reply not visible in conversation", slog.Int64("talker", talkerID))
		}
	}

	st.lastReply = m.now()
	st.softFails = 0
	m.noteReply(st.lastReply)
	m.logger.Info("reply sent",
		slog.Int64("talker", talkerID),
		slog.String("source", rep.Source),
		slog.String("kind", rep.Kind),
	)
	m.ring.Append(events.LevelSuccess, fmt.Sprintf("replied to %d (%s)", talkerID, rep.Source))
}

func (m *Monitor) noteProcessed() {
	m.mu.Lock()
	m.status.Processed++
	m.mu.Unlock()
}

func (m *Monitor) noteReply(at time.Time) {
	m.mu.Lock()
	m.status.Replies++
	m.status.LastReplyAt = at
	m.mu.Unlock()
}

func (m *Monitor) noteError() {
	m.mu.Lock()
	m.status.Errors++
	m.mu.Unlock()
}

// sleep waits for d, returning false when ctx finished first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
