package model

// All lists every table the application migrates, in dependency order.
func All() []any {
	return []any{
		&Reviewable{},
		&ReviewableScore{},
		&ReviewableHistory{},
		&CacheEntry{},
		&Actor{},
		&ActorGroup{},
		&Topic{},
		&Post{},
	}
}
