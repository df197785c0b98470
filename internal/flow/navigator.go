package flow

import (
	"sync"
	"time"
)

// FuncNavigator は遷移先を関数に渡すNavigator。
// 遅延遷移はtime.AfterFuncで予約する。
type FuncNavigator struct {
	Go func(route string)
}

// Navigate はGoを即座に呼ぶ。
func (n FuncNavigator) Navigate(route string) {
	n.Go(route)
}

// NavigateAfter はd経過後にGoを呼ぶ。cancelを呼んだ後は遷移しない。
func (n FuncNavigator) NavigateAfter(d time.Duration, route string) func() {
	var (
		mu       sync.Mutex
		canceled bool
	)
	timer := time.AfterFunc(d, func() {
		mu.Lock()
		defer mu.Unlock()
		if !canceled {
			n.Go(route)
		}
	})
	return func() {
		mu.Lock()
		defer mu.Unlock()
		canceled = true
		timer.Stop()
	}
}

var _ Navigator = FuncNavigator{}
