package domain

// Inbound actions sent by the content script and popup.
const (
	ActionAnalyze        = "analyze"
	ActionRetry          = "retry"
	ActionPageLoaded     = "pageLoaded"
	ActionUpdateAPIKey   = "updateApiKey"
	ActionCloseIndicator = "closeIndicator"
)

// Outbound actions consumed by the presentation layer.
const (
	ActionShowResult = "showResult"
	ActionShowError  = "showError"
	ActionHide       = "hide"
)

// InboundMessage is a control message for one browser context.
// Analyze carries either Article or HTML plus URL.
type InboundMessage struct {
	Action  string   `json:"action"  binding:"required"`
	Article *Article `json:"article,omitempty"`
	HTML    string   `json:"html,omitempty"`
	URL     string   `json:"url,omitempty"`
	APIKey  string   `json:"apiKey,omitempty"`
}

// Response acknowledges an inbound message.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK is the successful acknowledgement.
func OK() Response { return Response{Success: true} }

// Fail is a failed acknowledgement carrying msg.
func Fail(msg string) Response { return Response{Success: false, Error: msg} }

// ShowResultMessage carries a result to render. Provisional results are
// local hints that a later final result replaces.
type ShowResultMessage struct {
	Action      string         `json:"action"`
	Result      AnalysisResult `json:"result"`
	Provisional bool           `json:"provisional,omitempty"`
	Highlights  []int          `json:"highlights,omitempty"`
}

// ShowErrorMessage carries a user-facing failure.
type ShowErrorMessage struct {
	Action    string `json:"action"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// HideMessage removes the indicator.
type HideMessage struct {
	Action string `json:"action"`
}
