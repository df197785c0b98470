package handler

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/hitoshi/ecarebots/internal/flow"
)

// httpNavigator は1つのリクエストに対するflow.Navigatorの実装。
// 遷移はレスポンスを書き込むまで保留し、即時遷移は303リダイレクト、
// 遅延遷移はRefreshヘッダーとして返す。
type httpNavigator struct {
	target      string
	navigations int

	refreshURL   string
	refreshAfter time.Duration
}

// Navigate は即時遷移を予約する。
func (n *httpNavigator) Navigate(route string) {
	n.target = route
	n.navigations++
}

// NavigateAfter はd経過後の遷移を予約する。
func (n *httpNavigator) NavigateAfter(d time.Duration, route string) func() {
	n.refreshURL = route
	n.refreshAfter = d
	return func() {
		n.refreshURL = ""
		n.refreshAfter = 0
	}
}

// redirect は即時遷移が予約されていれば303を書き込みtrueを返す。
// 遅延遷移はRefreshヘッダーに設定し、呼び出し元がページを描画する。
func (n *httpNavigator) redirect(w http.ResponseWriter, r *http.Request) bool {
	if n.target != "" {
		http.Redirect(w, r, n.target, http.StatusSeeOther)
		return true
	}
	if n.refreshURL != "" {
		seconds := int(math.Ceil(n.refreshAfter.Seconds()))
		w.Header().Set("Refresh", fmt.Sprintf("%d; url=%s", seconds, n.refreshURL))
	}
	return false
}

var _ flow.Navigator = (*httpNavigator)(nil)
