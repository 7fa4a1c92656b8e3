package steward

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/role"
)

// ResolveRequest identifies one resolution.
type ResolveRequest struct {
	TenantID    string    `json:"tenant_id"`
	AppID       string    `json:"app_id,omitempty"`
	PrincipalID string    `json:"principal_id"`
	At          time.Time `json:"at"`
}

// ResolveEvent is passed to AfterResolve plugins.
type ResolveEvent struct {
	Request  *ResolveRequest
	Result   *EffectivePrivileges
	Err      error
	CacheHit bool
	Duration time.Duration
}

// Resolver computes effective privileges from the role catalog and the
// assignment store. It holds no mutable state and never writes, so a
// single Resolver may be shared by any number of goroutines.
type Resolver struct {
	Roles       role.Store
	Assignments assignment.Store

	// Principals, when set, is consulted for existence. A nil registry
	// treats every principal as known.
	Principals principal.Store

	Inheritance       bool
	MaxDepth          int
	InheritPrecedence bool
}

// Resolve merges the principal's live assignments at req.At.
//
// A principal without live assignments resolves to empty sets and
// PrecedenceNone. Assignments whose role is missing are skipped and
// reported in Warnings. Failures of the role or assignment source return
// ErrCollaboratorUnavailable.
func (r *Resolver) Resolve(ctx context.Context, req *ResolveRequest) (*EffectivePrivileges, error) {
	if req.PrincipalID == "" {
		return nil, ErrInvalidPrincipalID
	}
	at := req.At
	pid := req.PrincipalID

	var (
		live []*assignment.Assignment
		next *time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.Principals != nil {
		g.Go(func() error {
			_, err := r.Principals.GetPrincipal(gctx, req.TenantID, pid)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, principal.ErrNotFound):
				return &ResolutionError{PrincipalID: pid, Op: "get principal", Kind: ErrUnknownPrincipal}
			default:
				return unavailable(pid, "get principal", err)
			}
		})
	}
	g.Go(func() error {
		var err error
		live, err = r.Assignments.ListLiveAssignments(gctx, req.TenantID, pid, at)
		if err != nil {
			return unavailable(pid, "list live assignments", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		next, err = r.Assignments.NextWindowBoundary(gctx, req.TenantID, pid, at)
		if err != nil {
			return unavailable(pid, "next window boundary", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	priv := emptyPrivileges(req.TenantID, pid, at)
	priv.ValidUntil = next
	if len(live) == 0 {
		return priv, nil
	}

	catalog, err := r.loadCatalog(ctx, pid, live)
	if err != nil {
		return nil, err
	}

	m := newMerger(r.InheritPrecedence)
	for _, a := range live {
		rl := catalog[a.RoleID.String()]
		if rl == nil || rl.TenantID != req.TenantID {
			m.warn(Warning{
				Kind:         WarningDanglingRole,
				AssignmentID: a.ID.String(),
				RoleID:       a.RoleID.String(),
				Message:      fmt.Sprintf("assignment %s references role %s which is not in the catalog", a.ID, a.RoleID),
			})
			continue
		}
		m.add(rl, a.ID, false)
		if r.Inheritance {
			r.walkParents(m, catalog, rl, a.ID)
		}
	}
	m.finish(priv)
	return priv, nil
}

// loadCatalog fetches the assigned roles and, when inheritance is on,
// their ancestors level by level with one batch lookup per level.
func (r *Resolver) loadCatalog(ctx context.Context, pid string, live []*assignment.Assignment) (map[string]*role.Role, error) {
	ids := make([]id.RoleID, 0, len(live))
	seen := make(map[string]struct{}, len(live))
	for _, a := range live {
		if _, ok := seen[a.RoleID.String()]; !ok {
			seen[a.RoleID.String()] = struct{}{}
			ids = append(ids, a.RoleID)
		}
	}

	catalog, err := r.Roles.GetRoles(ctx, ids)
	if err != nil {
		return nil, unavailable(pid, "get roles", err)
	}
	if catalog == nil {
		catalog = make(map[string]*role.Role)
	}
	if !r.Inheritance {
		return catalog, nil
	}

	for depth := 0; depth < r.maxDepth(); depth++ {
		var pending []id.RoleID
		for _, rl := range catalog {
			if rl.ParentID == nil {
				continue
			}
			k := rl.ParentID.String()
			if _, asked := seen[k]; asked {
				continue
			}
			seen[k] = struct{}{}
			pending = append(pending, *rl.ParentID)
		}
		if len(pending) == 0 {
			break
		}
		parents, err := r.Roles.GetRoles(ctx, pending)
		if err != nil {
			return nil, unavailable(pid, "get parent roles", err)
		}
		for k, v := range parents {
			catalog[k] = v
		}
	}
	return catalog, nil
}

func (r *Resolver) walkParents(m *merger, catalog map[string]*role.Role, from *role.Role, via id.AssignmentID) {
	visited := map[string]struct{}{from.ID.String(): {}}
	cur := from
	for depth := 1; cur.ParentID != nil; depth++ {
		pk := cur.ParentID.String()
		if depth > r.maxDepth() {
			m.warn(Warning{
				Kind:         WarningInheritanceDepth,
				AssignmentID: via.String(),
				RoleID:       from.ID.String(),
				Message:      fmt.Sprintf("role %s exceeds the maximum inheritance depth of %d", from.ID, r.maxDepth()),
			})
			return
		}
		if _, loop := visited[pk]; loop {
			m.warn(Warning{
				Kind:         WarningInheritanceCycle,
				AssignmentID: via.String(),
				RoleID:       cur.ID.String(),
				Message:      fmt.Sprintf("role %s has a parent chain that loops back to %s", from.ID, pk),
			})
			return
		}
		visited[pk] = struct{}{}

		parent := catalog[pk]
		if parent == nil || parent.TenantID != from.TenantID {
			m.warn(Warning{
				Kind:         WarningDanglingParent,
				AssignmentID: via.String(),
				RoleID:       pk,
				Message:      fmt.Sprintf("role %s references parent %s which is not in the catalog", cur.ID, pk),
			})
			return
		}
		m.add(parent, via, true)
		cur = parent
	}
}

func (r *Resolver) maxDepth() int {
	if r.MaxDepth <= 0 {
		return 10
	}
	return r.MaxDepth
}

// ──────────────────────────────────────────────────
// Merge
// ──────────────────────────────────────────────────

type merger struct {
	inheritPrecedence bool
	grants            map[string]*RoleGrant
	permissions       map[string]struct{}
	modules           map[string]struct{}
	warnings          []Warning
	warned            map[string]struct{}
	highest           int
}

func newMerger(inheritPrecedence bool) *merger {
	return &merger{
		inheritPrecedence: inheritPrecedence,
		grants:            make(map[string]*RoleGrant),
		permissions:       make(map[string]struct{}),
		modules:           make(map[string]struct{}),
		warned:            make(map[string]struct{}),
		highest:           PrecedenceNone,
	}
}

func (m *merger) add(rl *role.Role, via id.AssignmentID, inherited bool) {
	k := rl.ID.String()
	if g, ok := m.grants[k]; ok {
		// A direct assignment outranks an inherited path to the same role.
		if g.Inherited && !inherited {
			g.Inherited = false
			g.AssignmentID = via
		}
	} else {
		m.grants[k] = &RoleGrant{
			RoleID:       rl.ID,
			Slug:         rl.Slug,
			Name:         rl.Name,
			Precedence:   rl.Precedence,
			AssignmentID: via,
			Inherited:    inherited,
		}
		for _, p := range rl.Permissions {
			m.permissions[p] = struct{}{}
		}
		for _, mod := range rl.Modules {
			m.modules[mod] = struct{}{}
		}
	}
	if (!inherited || m.inheritPrecedence) && rl.Precedence < m.highest {
		m.highest = rl.Precedence
	}
}

func (m *merger) warn(w Warning) {
	k := string(w.Kind) + "\x00" + w.AssignmentID + "\x00" + w.RoleID
	if _, dup := m.warned[k]; dup {
		return
	}
	m.warned[k] = struct{}{}
	m.warnings = append(m.warnings, w)
}

func (m *merger) finish(priv *EffectivePrivileges) {
	priv.Roles = make([]RoleGrant, 0, len(m.grants))
	for _, g := range m.grants {
		priv.Roles = append(priv.Roles, *g)
	}
	slices.SortFunc(priv.Roles, func(a, b RoleGrant) int {
		return cmp.Or(cmp.Compare(a.Precedence, b.Precedence), a.RoleID.Compare(b.RoleID))
	})

	priv.Permissions = sortedKeys(m.permissions)
	priv.Modules = sortedKeys(m.modules)
	priv.HighestPrecedence = m.highest
	if len(m.warnings) > 0 {
		priv.Warnings = m.warnings
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
