package spec

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/roach88/bgproces/internal/engine"
	"github.com/roach88/bgproces/internal/instrument"
	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/momentopname"
)

const (
	// DefaultCacheExpiration bounds how long a built timeline is reused.
	DefaultCacheExpiration = 10 * time.Minute
	// DefaultCacheCleanup is the eviction interval of the timeline cache.
	DefaultCacheCleanup = 30 * time.Minute
)

var (
	// ErrUnknownSoort is returned when adding an activity outside the taxonomy.
	ErrUnknownSoort = errors.New("unknown activity soort")

	// ErrNotChangeActivity is returned when asking a non-change activity
	// for a branch.
	ErrNotChangeActivity = errors.New("activity does not describe branches")

	// ErrPropertyNotPermitted is returned for a property outside the
	// activity's taxonomy entry.
	ErrPropertyNotPermitted = errors.New("property not permitted for activity")
)

// ChangeListener receives the new export after every change of it.
type ChangeListener func(export string)

// Session is one editing session: a specification tree, the nodes that
// edit it, and the bus that keeps them consistent.
//
// The root node is attached first, so it re-exports before any other node
// reads the tree. Listeners are called only when the export changed.
//
// A Session is not safe for concurrent use.
type Session struct {
	id           string
	bus          *engine.Bus
	root         *engine.RootContainer
	rootNode     *engine.Binding
	registry     *instrument.Registry
	logger       *slog.Logger
	defaultStart time.Time
	cache        *gocache.Cache

	export    string
	listeners []listenerEntry
	nextID    int

	props      map[string]*PropertyNode
	startdatum *DateNode
	baseline   *MomentopnameNode
	activities []*ActivityNode
	nodes      []*engine.Binding
}

type listenerEntry struct {
	id int
	fn ChangeListener
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	busOpts      []engine.BusOption
	ids          engine.IDGenerator
	registry     *instrument.Registry
	logger       *slog.Logger
	defaultStart time.Time
}

// WithBusOptions passes options to the session's bus.
func WithBusOptions(opts ...engine.BusOption) SessionOption {
	return func(c *sessionConfig) {
		c.busOpts = append(c.busOpts, opts...)
	}
}

// WithIDGenerator sets the session id generator.
func WithIDGenerator(g engine.IDGenerator) SessionOption {
	return func(c *sessionConfig) {
		c.ids = g
	}
}

// WithSessionRegistry injects the instrument registry the session
// allocates codes from and loads into.
func WithSessionRegistry(reg *instrument.Registry) SessionOption {
	return func(c *sessionConfig) {
		c.registry = reg
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionStartdatum sets day 0 for trees without a Startdatum.
func WithSessionStartdatum(t time.Time) SessionOption {
	return func(c *sessionConfig) {
		c.defaultStart = t
	}
}

// NewSession creates a session with an empty specification tree.
func NewSession(opts ...SessionOption) *Session {
	cfg := sessionConfig{
		ids:    engine.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = instrument.NewRegistry()
	}

	s := &Session{
		id:           cfg.ids.Generate(),
		bus:          engine.NewBus(append([]engine.BusOption{engine.WithLogger(cfg.logger)}, cfg.busOpts...)...),
		root:         engine.Root(ir.IRObject{}),
		registry:     cfg.registry,
		logger:       cfg.logger,
		defaultStart: cfg.defaultStart,
		cache:        gocache.New(DefaultCacheExpiration, DefaultCacheCleanup),
		props:        make(map[string]*PropertyNode),
	}
	s.rootNode = engine.NewBinding(s.bus, "", s.root, engine.WithReact(func(b *engine.Binding, n engine.Notification) {
		s.reexport()
	}))
	s.nodes = append(s.nodes, s.rootNode)
	s.export, _ = ir.Export(s.root.Object())
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Bus returns the session's notification bus.
func (s *Session) Bus() *engine.Bus {
	return s.bus
}

// Registry returns the session's instrument registry.
func (s *Session) Registry() *instrument.Registry {
	return s.registry
}

// Document returns the live tree. Callers must not modify it.
func (s *Session) Document() ir.IRObject {
	return s.root.Object()
}

// Export returns the canonical JSON of the current tree.
func (s *Session) Export() string {
	return s.export
}

func (s *Session) reexport() {
	out, err := ir.Export(s.root.Object())
	if err != nil {
		s.logger.Error("export failed", "session", s.id, "error", err)
		return
	}
	if out == s.export {
		return
	}
	s.export = out
	for _, l := range append([]listenerEntry(nil), s.listeners...) {
		l.fn(out)
	}
}

// RegisterChangeListener calls fn with the new export whenever it
// changes. The returned function unregisters it.
func (s *Session) RegisterChangeListener(fn ChangeListener) func() {
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Load validates data and, on success, replaces the tree with the loaded
// specification. The registry then holds exactly the loaded instruments
// plus the codes reserved by version nodes that are still attached.
// Activity nodes of the old tree are detached. On error the tree and the
// registry are left untouched.
func (s *Session) Load(data []byte) (*Specification, error) {
	sp, err := Load(data,
		WithDefaultStartdatum(s.defaultStart),
		WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}

	s.root.Store(sp.Document())
	s.rootNode.Reload()
	_ = s.bus.Broadcast(s.rootNode.ID(), engine.KindReloaded, "", nil, 0)
	s.dropDetached()
	s.resetRegistry(sp.Registry)
	s.reexport()
	s.cache.SetDefault(ir.Fingerprint(s.export), sp)

	s.logger.Debug("specification loaded", "session", s.id, "fingerprint", ir.Fingerprint(s.export))
	return sp, nil
}

// Specification loads the current export. Results are cached by export
// fingerprint, so repeated calls on an unchanged tree are cheap.
func (s *Session) Specification() (*Specification, error) {
	key := ir.Fingerprint(s.export)
	if cached, ok := s.cache.Get(key); ok {
		if sp, ok := cached.(*Specification); ok {
			return sp, nil
		}
	}
	sp, err := Load([]byte(s.export), WithDefaultStartdatum(s.defaultStart), WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, sp)
	return sp, nil
}

// Timeline returns the snapshot timeline of the current tree.
func (s *Session) Timeline() (*momentopname.Timeline, error) {
	sp, err := s.Specification()
	if err != nil {
		return nil, err
	}
	return sp.Timeline, nil
}

// Validate reports whether the current tree loads.
func (s *Session) Validate() error {
	_, err := s.Specification()
	return err
}

// Close detaches every node from the bus and drops cached timelines.
func (s *Session) Close() {
	for _, n := range s.nodes {
		n.Destroy()
	}
	s.nodes = nil
	s.cache.Flush()
}

// startDate returns day 0 of the tree: its Startdatum, else the default.
func (s *Session) startDate() (time.Time, bool) {
	if text, ok := s.root.Object().String(KeyStartdatum); ok {
		if t, err := time.Parse(DateLayout, text); err == nil {
			return t, true
		}
	}
	return s.defaultStart, !s.defaultStart.IsZero()
}

// bind creates a node; every node reloads its value when the tree is
// replaced, then runs react (if any).
func (s *Session) bind(path string, c engine.Container, valid func(ir.IRValue) bool, react func(*engine.Binding, engine.Notification)) *engine.Binding {
	opts := []engine.BindingOption{engine.WithReact(func(b *engine.Binding, n engine.Notification) {
		if n.Kind == engine.KindReloaded {
			b.Reload()
		}
		if react != nil {
			react(b, n)
		}
	})}
	if valid != nil {
		opts = append(opts, engine.WithValid(valid))
	}
	b := engine.NewBinding(s.bus, path, c, opts...)
	s.nodes = append(s.nodes, b)
	return b
}

// branchOwner finds a project other than except that uses branch in the
// tree. ok is false when no such activity exists.
func (s *Session) branchOwner(branch, except string) (project string, ok bool) {
	check := func(arr ir.IRArray) bool {
		for _, elem := range arr {
			obj, _ := elem.(ir.IRObject)
			typ, known := LookupSoort(stringOf(obj[PropSoort]))
			if !known || !typ.IsBranchKey(branch) {
				continue
			}
			if _, present := obj[branch]; present {
				return true
			}
		}
		return false
	}

	doc := s.root.Object()
	if projecten, found := doc.Object(KeyProjecten); found {
		for _, name := range projecten.SortedKeys() {
			if name == except {
				continue
			}
			arr, _ := projecten.Array(name)
			if check(arr) {
				return name, true
			}
		}
	}
	if except != "" {
		if arr, found := doc.Array(KeyOverig); found && check(arr) {
			return "", true
		}
	}
	return "", false
}

// branchClaim finds a project other than project that uses branch, either
// in the tree or through a branch node of one of its activities that is
// not stored yet.
func (s *Session) branchClaim(branch, project string) (owner string, ok bool) {
	if owner, ok := s.branchOwner(branch, project); ok {
		return owner, true
	}
	for _, a := range s.activities {
		if a.project == project || !s.bus.IsLive(a.ID()) || a.Path() == "" {
			continue
		}
		if _, claimed := a.branches[branch]; claimed {
			return a.project, true
		}
	}
	return "", false
}

// dropDetached destroys the activity nodes whose element is no longer in
// the tree, together with every node below them.
func (s *Session) dropDetached() {
	kept := s.activities[:0]
	for _, a := range s.activities {
		if a.Value() == nil {
			a.destroy()
			continue
		}
		kept = append(kept, a)
	}
	clear(s.activities[len(kept):])
	s.activities = kept

	live := s.nodes[:0]
	for _, n := range s.nodes {
		if s.bus.IsLive(n.ID()) {
			live = append(live, n)
		}
	}
	clear(s.nodes[len(live):])
	s.nodes = live
}

// resetRegistry replaces the registry contents with loaded and reserves
// the codes of the version nodes that are still attached.
func (s *Session) resetRegistry(loaded *instrument.Registry) {
	s.registry.Reset(loaded)

	var snapshots []*MomentopnameNode
	if s.baseline != nil {
		snapshots = append(snapshots, s.baseline)
	}
	for _, a := range s.activities {
		for _, m := range a.branches {
			snapshots = append(snapshots, m)
		}
	}
	for _, m := range snapshots {
		for code, v := range m.versions {
			if s.bus.IsLive(v.ID()) {
				s.registry.Reserve(code)
			}
		}
	}
}

func activitiesContainer(root engine.Container, project string) engine.Container {
	if project == "" {
		return engine.Property(root, KeyOverig)
	}
	return engine.Property(engine.Property(root, KeyProjecten), project)
}

func activitiesPath(project string) string {
	if project == "" {
		return "/" + KeyOverig
	}
	return fmt.Sprintf("/%s/%s", KeyProjecten, project)
}
