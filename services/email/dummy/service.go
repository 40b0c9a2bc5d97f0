package dummymail

import (
	"sync"

	"github.com/trezcool/shule/core"
)

// Service records rendered messages instead of sending them; for tests.
type Service struct {
	mutex        sync.Mutex
	SentMessages []core.EmailMessage
}

var _ core.EmailService = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func (svc *Service) SendMessages(messages ...*core.EmailMessage) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	for _, msg := range messages {
		if err := msg.Render(); err != nil {
			continue
		}
		if msg.HasRecipients() && msg.HasContent() {
			svc.SentMessages = append(svc.SentMessages, *msg)
		}
	}
}

// Clear drops previously recorded messages.
func (svc *Service) Clear() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	svc.SentMessages = nil
}
