package session

// Subscribe registers for transition events. Each status change delivers one
// Transition to every subscriber. The returned cancel function removes the
// subscription and closes the channel.
//
// Delivery is non-blocking: a subscriber that falls more than the channel
// buffer behind loses the oldest undelivered events and a warning is logged.
// Transitions raced from separate goroutines may be observed in either
// order. Navigation and UI layers consume only the latest state, so this is
// the contract they need.
func (m *Machine) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, 16)

	m.subLock.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subLock.Unlock()

	cancel := func() {
		m.subLock.Lock()
		defer m.subLock.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// emit delivers the transition to every subscriber. Held under subLock so a
// concurrent cancel cannot close a channel mid-send.
func (m *Machine) emit(t Transition) {
	m.subLock.Lock()
	defer m.subLock.Unlock()

	for id, ch := range m.subs {
		select {
		case ch <- t:
		default:
			m.log.Warn().Int("subscriber", id).Msg("transition subscriber is not keeping up, dropping event")
		}
	}
}
