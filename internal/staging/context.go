package staging

import (
	"log/slog"
	"sync"

	"github.com/solatis/segmentkeeper/internal/rules"
)

// Mapping is the reference remapping table of one import job: per class name,
// original primary key to destination primary key. Entries are write-once;
// the first resolution wins and later lookups read it.
type Mapping struct {
	mu sync.RWMutex
	m  map[string]map[int64]int64
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{m: make(map[string]map[int64]int64)}
}

// Put records orig -> dest for className unless orig is already mapped.
// Returns the destination key in effect and whether this call stored it.
func (m *Mapping) Put(className string, orig, dest int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byClass, ok := m.m[className]
	if !ok {
		byClass = make(map[int64]int64)
		m.m[className] = byClass
	}
	if existing, ok := byClass[orig]; ok {
		return existing, false
	}
	byClass[orig] = dest
	return dest, true
}

// Get returns the destination key for orig.
func (m *Mapping) Get(className string, orig int64) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dest, ok := m.m[className][orig]
	return dest, ok
}

// Resolve returns the destination key for orig, or orig when unmapped.
func (m *Mapping) Resolve(className string, orig int64) int64 {
	if dest, ok := m.Get(className, orig); ok {
		return dest
	}
	return orig
}

// Context is the state of one export or import job. It implements
// rules.DataContext.
type Context struct {
	companyID    int64
	scopeGroupID int64
	userID       int64
	bundle       *Bundle
	mapping      *Mapping
	logger       *slog.Logger

	mu       sync.Mutex
	warnings []rules.Unresolved
}

// NewContext creates a job context. userID is the importing user, used when a
// record's creator does not exist in the destination. A nil bundle starts an
// empty one; a nil logger uses slog.Default().
func NewContext(companyID, scopeGroupID, userID int64, bundle *Bundle, logger *slog.Logger) *Context {
	if bundle == nil {
		bundle = NewBundle()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		companyID:    companyID,
		scopeGroupID: scopeGroupID,
		userID:       userID,
		bundle:       bundle,
		mapping:      NewMapping(),
		logger:       logger.With("company_id", companyID, "scope_group_id", scopeGroupID),
	}
}

func (c *Context) CompanyID() int64    { return c.companyID }
func (c *Context) ScopeGroupID() int64 { return c.scopeGroupID }
func (c *Context) UserID() int64       { return c.userID }
func (c *Context) Bundle() *Bundle     { return c.bundle }
func (c *Context) Mapping() *Mapping   { return c.mapping }

// Unresolved logs ref at warn level and keeps it for the job report.
func (c *Context) Unresolved(ref rules.Unresolved) {
	c.logger.Warn("unresolved reference left unchanged",
		"direction", ref.Direction,
		"rule_key", ref.RuleKey,
		"rule_instance_uuid", ref.RuleInstanceUUID,
		"reference", ref.Reference)

	c.mu.Lock()
	c.warnings = append(c.warnings, ref)
	c.mu.Unlock()
}

// Warnings returns the unresolved references recorded so far.
func (c *Context) Warnings() []rules.Unresolved {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rules.Unresolved, len(c.warnings))
	copy(out, c.warnings)
	return out
}

var _ rules.DataContext = (*Context)(nil)
