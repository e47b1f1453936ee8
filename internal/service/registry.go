package service

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

// Registry maps task ids to their job records. A Registry is created
// explicitly and passed to every consumer, there is no package level instance.
type Registry struct {
	mx    sync.RWMutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
	}
}

func (r *Registry) Get(id string) (*Task, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// List returns tasks sorted by id.
func (r *Registry) List() []*Task {
	r.mx.RLock()
	defer r.mx.RUnlock()
	ret := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		ret = append(ret, t)
	}
	slices.SortFunc(ret, func(a, b *Task) int { return strings.Compare(a.ID, b.ID) })
	return ret
}

// Running returns the number of tasks in progress.
func (r *Registry) Running() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	var n int
	for _, t := range r.tasks {
		if t.Status() == model.StatusInProgress {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.tasks)
}

func (r *Registry) put(t *Task) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.tasks[t.ID] = t
}

// Evict removes the tasks which finished before the cutoff and returns their ids.
// Tasks in progress are never evicted.
func (r *Registry) Evict(before time.Time) []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	var evicted []string
	for id, t := range r.tasks {
		stopped, terminal := t.stoppedAt()
		if !terminal || !stopped.Before(before) {
			continue
		}
		delete(r.tasks, id)
		evicted = append(evicted, id)
	}
	slices.Sort(evicted)
	return evicted
}
