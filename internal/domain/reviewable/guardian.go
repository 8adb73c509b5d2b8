package reviewable

// Actor is the slice of a user account the review workflow needs.
type Actor struct {
	ID        uint64
	Username  string
	Admin     bool
	Moderator bool
	Approved  bool
	GroupIDs  []uint64
}

func (a Actor) IsStaff() bool { return a.Admin || a.Moderator }

func (a Actor) InGroup(groupID uint64) bool {
	for _, id := range a.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// Guardian answers permission questions for one actor. The zero value is an
// anonymous guardian that can see and do nothing.
type Guardian struct {
	actor *Actor
}

func NewGuardian(actor *Actor) Guardian {
	if actor == nil {
		return Guardian{}
	}
	copied := *actor
	copied.GroupIDs = append([]uint64(nil), actor.GroupIDs...)
	return Guardian{actor: &copied}
}

func (g Guardian) Actor() (Actor, bool) {
	if g.actor == nil {
		return Actor{}, false
	}
	return *g.actor, true
}

func (g Guardian) IsAnonymous() bool { return g.actor == nil }

func (g Guardian) IsAdmin() bool { return g.actor != nil && g.actor.Admin }

func (g Guardian) IsStaff() bool { return g.actor != nil && g.actor.IsStaff() }

func (g Guardian) GroupIDs() []uint64 {
	if g.actor == nil {
		return nil
	}
	return append([]uint64(nil), g.actor.GroupIDs...)
}

// CanSee mirrors the queue visibility predicate.
func (g Guardian) CanSee(item Item) bool {
	if g.actor == nil {
		return false
	}
	if g.actor.Admin {
		return true
	}
	if item.ReviewableByModerator && g.actor.IsStaff() {
		return true
	}
	return item.ReviewableByGroupID != nil && g.actor.InGroup(*item.ReviewableByGroupID)
}

// CanDeleteActor allows staff to delete non-staff accounts other than their own.
func (g Guardian) CanDeleteActor(target *Actor) bool {
	if g.actor == nil || target == nil || !g.actor.IsStaff() {
		return false
	}
	if target.ID == g.actor.ID {
		return false
	}
	return !target.IsStaff()
}
