package bot

type BotState int

const (
	StateDefault BotState = iota
	StateSelectingGroup
	StateAwaitingSheetURL
)

type UserSession struct {
	State BotState
	Group string // выбранная группа; переживает сброс состояния
}

func (b *Bot) getOrCreateSession(chatID int64) *UserSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	if session, exists := b.userSessions[chatID]; exists {
		return session
	}

	session := &UserSession{State: StateDefault}
	b.userSessions[chatID] = session
	return session
}

func (b *Bot) setState(chatID int64, state BotState) {
	session := b.getOrCreateSession(chatID)
	b.mu.Lock()
	session.State = state
	b.mu.Unlock()
}

func (b *Bot) setGroup(chatID int64, group string) {
	session := b.getOrCreateSession(chatID)
	b.mu.Lock()
	session.Group = group
	session.State = StateDefault
	b.mu.Unlock()
}

// snapshot возвращает копию сессии для чтения без блокировки.
func (b *Bot) snapshot(chatID int64) UserSession {
	session := b.getOrCreateSession(chatID)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return *session
}

func (b *Bot) resetState(chatID int64) {
	b.setState(chatID, StateDefault)
}
