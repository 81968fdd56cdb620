// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/decred/dcrd/lru"

	"github.com/btcsuite/cyclepool/chainhash"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various pool events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTTxAccepted indicates a transaction became resident.
	NTTxAccepted NotificationType = iota

	// NTTxRemoved indicates a transaction left the pool for a reason
	// other than being committed.
	NTTxRemoved

	// NTTxStateChanged indicates a resident transaction moved between
	// resident states.
	NTTxStateChanged
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTTxAccepted:     "NTTxAccepted",
	NTTxRemoved:      "NTTxRemoved",
	NTTxStateChanged: "NTTxStateChanged",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification defines notification that is sent to the caller via the
// callbacks registered with Subscribe and consists of a notification type as
// well as associated data that depends on the type as follows:
//   - NTTxAccepted:     *TxDesc
//   - NTTxRemoved:      *RemovedTx
//   - NTTxStateChanged: *TxDesc
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe registers a callback for pool notifications.  Callbacks run on
// the goroutine that caused the event, after the pool lock is released.
func (p *TxPool) Subscribe(callback NotificationCallback) {
	p.notificationsLock.Lock()
	p.notifications = append(p.notifications, callback)
	p.notificationsLock.Unlock()
}

func (p *TxPool) sendNotification(n *Notification) {
	p.notificationsLock.RLock()
	for _, callback := range p.notifications {
		callback(n)
	}
	p.notificationsLock.RUnlock()
}

// announcer suppresses repeated acceptance notifications for a transaction
// that returns to the pool after its block was reverted.
type announcer struct {
	seen lru.Cache
}

func newAnnouncer(limit uint) *announcer {
	return &announcer{seen: lru.NewCache(limit)}
}

// firstSighting records hash and reports whether it was not seen before.
func (a *announcer) firstSighting(hash chainhash.Hash) bool {
	if a.seen.Contains(hash) {
		return false
	}
	a.seen.Add(hash)
	return true
}

// forget drops hash so the next acceptance is announced again.
func (a *announcer) forget(hash chainhash.Hash) {
	a.seen.Delete(hash)
}

// eventBatch collects the notifications produced while the pool lock is held
// so they can be dispatched after it is released.
type eventBatch struct {
	events []*Notification
}

func (b *eventBatch) accepted(d *TxDesc) {
	b.events = append(b.events, &Notification{Type: NTTxAccepted, Data: d})
}

func (b *eventBatch) removed(hash chainhash.Hash, reason State, detail string) {
	b.events = append(b.events, &Notification{
		Type: NTTxRemoved,
		Data: &RemovedTx{Hash: hash, Reason: reason, Detail: detail},
	})
}

func (b *eventBatch) stateChanged(d *TxDesc) {
	b.events = append(b.events, &Notification{Type: NTTxStateChanged, Data: d})
}

// flush dispatches the collected notifications in order.
func (p *TxPool) flush(b *eventBatch) {
	for _, n := range b.events {
		switch n.Type {
		case NTTxAccepted:
			if !p.announced.firstSighting(n.Data.(*TxDesc).Hash) {
				continue
			}
		case NTTxRemoved:
			if r := n.Data.(*RemovedTx); r.Reason != StateCommitted {
				p.announced.forget(r.Hash)
			}
		}
		p.sendNotification(n)
	}
	b.events = nil
}
