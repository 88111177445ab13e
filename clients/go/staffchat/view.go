package staffchat

import (
	"sync"

	"github.com/deskhub/staffchat/internal/models"
)

// NotifyState captures what the user is currently looking at. The three
// booleans are independent signals; the suppression decision is their
// conjunction.
type NotifyState struct {
	ActiveThread    string // peer id of the open thread, empty when none
	WindowFocused   bool
	DocumentVisible bool
}

// ShouldInterrupt decides between an interruptive notification and a
// silent append for an inbound message from fromID. Interruption is raised
// when the message's thread is not the active one, or the window lacks
// focus, or the document is hidden. Suppression requires all three
// conditions to favor "the user is already looking at this thread".
func ShouldInterrupt(state NotifyState, fromID string) bool {
	if state.ActiveThread != fromID {
		return true
	}
	if !state.WindowFocused {
		return true
	}
	if !state.DocumentVisible {
		return true
	}
	return false
}

// Decision reports what the view did with an inbound message.
type Decision struct {
	Interrupt  bool   // raise a visual+audible notification
	SwitchedTo string // non-empty when the active thread auto-switched
}

// ThreadView is the per-peer thread cache plus the notification contract.
// Messages are always appended regardless of the notification decision;
// nothing here affects what history returns.
type ThreadView struct {
	mu        sync.Mutex
	selfID    string
	threads   map[string][]models.DeliveredMessage
	state     NotifyState
	panelOpen bool
}

// NewThreadView creates a view for the given identity.
func NewThreadView(selfID string) *ThreadView {
	return &ThreadView{
		selfID:  selfID,
		threads: make(map[string][]models.DeliveredMessage),
		state: NotifyState{
			WindowFocused:   true,
			DocumentVisible: true,
		},
	}
}

// SetFocus records whether the application window has focus.
func (v *ThreadView) SetFocus(focused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.WindowFocused = focused
}

// SetVisible records whether the document is visible.
func (v *ThreadView) SetVisible(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.DocumentVisible = visible
}

// SetPanelOpen records whether the conversation panel is open. Auto-switch
// on inbound messages only happens while the panel is open.
func (v *ThreadView) SetPanelOpen(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panelOpen = open
}

// ActivateThread switches the active thread to the given peer.
func (v *ThreadView) ActivateThread(peer string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.ActiveThread = peer
}

// ActiveThread returns the currently active peer thread.
func (v *ThreadView) ActiveThread() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.ActiveThread
}

// Thread returns the cached messages for a peer, oldest first.
func (v *ThreadView) Thread(peer string) []models.DeliveredMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	msgs := v.threads[peer]
	out := make([]models.DeliveredMessage, len(msgs))
	copy(out, msgs)
	return out
}

// ReplaceThread swaps the cached thread for a peer with freshly fetched
// history. Used after reconnect: there is no replay buffer across a
// disconnect, so the cache cannot be trusted.
func (v *ThreadView) ReplaceThread(peer string, msgs []models.DeliveredMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.threads[peer] = append([]models.DeliveredMessage(nil), msgs...)
}

// DropThread discards the local cache for a peer, e.g. after clearing the
// conversation server-side.
func (v *ThreadView) DropThread(peer string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.threads, peer)
}

// Append stores a delivered message in its thread and decides whether to
// interrupt. Outbound echoes (multi-device copies of the user's own sends)
// never interrupt. If the panel is open and an inbound message belongs to
// a different thread, the active thread auto-switches to the sender.
func (v *ThreadView) Append(msg models.DeliveredMessage) Decision {
	v.mu.Lock()
	defer v.mu.Unlock()

	peer := msg.FromID
	if msg.FromID == v.selfID {
		peer = msg.ToID
	}
	v.threads[peer] = append(v.threads[peer], msg)

	if msg.FromID == v.selfID {
		return Decision{}
	}

	decision := Decision{Interrupt: ShouldInterrupt(v.state, msg.FromID)}

	if v.panelOpen && v.state.ActiveThread != msg.FromID {
		v.state.ActiveThread = msg.FromID
		decision.SwitchedTo = msg.FromID
	}

	return decision
}
