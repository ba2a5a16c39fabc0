package obs

import "encoding/json"

// obs-websocket v5 opcodes.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opEvent           = 5
	opRequest         = 6
	opRequestResponse = 7
)

const (
	rpcVersion = 1
	// subscribeOutputs is the EventSubscription bit for output events,
	// which carries RecordStateChanged.
	subscribeOutputs = 1 << 6

	closeAuthenticationFailed = 4009
)

// RecordStateChanged output states. STARTING and STOPPING are transitional
// and leave the recording flag untouched.
const (
	outputStarted = "OBS_WEBSOCKET_OUTPUT_STARTED"
	outputStopped = "OBS_WEBSOCKET_OUTPUT_STOPPED"
	outputPaused  = "OBS_WEBSOCKET_OUTPUT_PAUSED"
	outputResumed = "OBS_WEBSOCKET_OUTPUT_RESUMED"
)

type message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type hello struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

type request struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type response struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment,omitempty"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData,omitempty"`
}

type event struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData"`
}

type recordStateChanged struct {
	OutputActive bool   `json:"outputActive"`
	OutputState  string `json:"outputState"`
	OutputPath   string `json:"outputPath,omitempty"`
}

// RecordStatus is the GetRecordStatus response.
type RecordStatus struct {
	OutputActive   bool   `json:"outputActive"`
	OutputPaused   bool   `json:"outputPaused"`
	OutputTimecode string `json:"outputTimecode"`
	OutputDuration int64  `json:"outputDuration"`
	OutputBytes    int64  `json:"outputBytes"`
}

type profileParameter struct {
	Category string  `json:"parameterCategory"`
	Name     string  `json:"parameterName"`
	Value    *string `json:"parameterValue,omitempty"`
}

type profileParameterValue struct {
	Value        string `json:"parameterValue"`
	DefaultValue string `json:"defaultParameterValue"`
}
