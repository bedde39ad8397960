package reconcile

import (
	"sort"
	"sync"
)

// KeyLocker: неблокирующие блокировки по строковым ключам внутри процесса.
type KeyLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{held: make(map[string]struct{})}
}

// TryLock захватывает все ключи сразу либо ни одного. Возвращённая функция
// освобождает ключи; повторный вызов безопасен.
func (l *KeyLocker) TryLock(keys ...string) (unlock func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, k := range keys {
		if _, busy := l.held[k]; busy {
			return nil, false
		}
	}
	uniq := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := l.held[k]; dup {
			continue
		}
		l.held[k] = struct{}{}
		uniq = append(uniq, k)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, k := range uniq {
				delete(l.held, k)
			}
		})
	}, true
}

// Held возвращает занятые ключи, отсортированные.
func (l *KeyLocker) Held() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.held))
	for k := range l.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
