package dialog

import (
	"fmt"
	"sync"

	worker "github.com/toyota-m2k/android-worker"
)

// ViewModel is the sole channel between a dialog surface and the task
// it represents. It outlives any individual surface: when the hosting
// UI session is torn down and the surface revived, the new surface
// binds to the same view-model and picks up the current state.
type ViewModel struct {
	mu        sync.Mutex
	percent   int
	completed bool
	onCancel  func()

	requestClose func(positive bool)
}

func newViewModel(requestClose func(positive bool)) *ViewModel {
	return &ViewModel{requestClose: requestClose}
}

// SetProgress recomputes the percentage from a (current, total) pair
// and returns it.
func (vm *ViewModel) SetProgress(current, total int64) int {
	p := worker.Percent(current, total)
	vm.mu.Lock()
	vm.percent = p
	vm.mu.Unlock()
	return p
}

// Percent returns the current percentage in [0,100].
func (vm *ViewModel) Percent() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.percent
}

// PercentText returns the percentage formatted for display.
func (vm *ViewModel) PercentText() string {
	return fmt.Sprintf("%d%%", vm.Percent())
}

// Completed reports whether Complete has been called.
func (vm *ViewModel) Completed() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.completed
}

// Complete forces the percentage to 100 and marks the work done.
func (vm *ViewModel) Complete() {
	vm.mu.Lock()
	vm.percent = 100
	vm.completed = true
	vm.mu.Unlock()
}

// OnCancel installs the callback invoked when the user cancels from
// the surface.
func (vm *ViewModel) OnCancel(fn func()) {
	vm.mu.Lock()
	vm.onCancel = fn
	vm.mu.Unlock()
}

// Cancel runs the cancel callback, then requests the session close
// with a negative outcome. Cancellation is cooperative: the callback
// typically flags the running closure, it does not interrupt it.
func (vm *ViewModel) Cancel() {
	vm.mu.Lock()
	fn := vm.onCancel
	vm.mu.Unlock()
	if fn != nil {
		fn()
	}
	vm.requestClose(false)
}

// RequestClose asks the session to end with the given outcome polarity.
func (vm *ViewModel) RequestClose(positive bool) {
	vm.requestClose(positive)
}
