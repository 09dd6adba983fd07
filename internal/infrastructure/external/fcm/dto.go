package fcm

import "github.com/chatpush/notifier/internal/domain/notification"

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST
// ══════════════════════════════════════════════════════════════════════════════

// MulticastRequestDTO is the body of POST /v1/messages:sendMulticast.
type MulticastRequestDTO struct {
	Tokens       []string          `json:"tokens"`
	Notification NotificationDTO   `json:"notification"`
	Android      AndroidConfigDTO  `json:"android"`
	APNs         APNsConfigDTO     `json:"apns"`
	Data         map[string]string `json:"data,omitempty"`
}

// NotificationDTO is the cross-platform title/body.
type NotificationDTO struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AndroidConfigDTO carries Android delivery options.
type AndroidConfigDTO struct {
	Priority     string                 `json:"priority,omitempty"`
	Notification AndroidNotificationDTO `json:"notification"`
}

// AndroidNotificationDTO is the Android notification block.
type AndroidNotificationDTO struct {
	ChannelID  string `json:"channel_id,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

// APNsConfigDTO carries iOS delivery options.
type APNsConfigDTO struct {
	Payload APNsPayloadDTO `json:"payload"`
}

// APNsPayloadDTO wraps the aps dictionary.
type APNsPayloadDTO struct {
	APS APSDTO `json:"aps"`
}

// APSDTO is the aps dictionary.
type APSDTO struct {
	Sound string `json:"sound,omitempty"`
	Badge *int   `json:"badge,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE
// ══════════════════════════════════════════════════════════════════════════════

// BatchResponseDTO is the multicast response. Responses[i] belongs to Tokens[i].
type BatchResponseDTO struct {
	SuccessCount int             `json:"successCount"`
	FailureCount int             `json:"failureCount"`
	Responses    []SendResultDTO `json:"responses"`
}

// SendResultDTO is the verdict for one token.
type SendResultDTO struct {
	Success   bool          `json:"success"`
	MessageID string        `json:"messageId,omitempty"`
	Error     *SendErrorDTO `json:"error,omitempty"`
}

// SendErrorDTO describes a per-token failure.
type SendErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ErrorResponseDTO is the body of a non-2xx response.
type ErrorResponseDTO struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// ToMulticastRequest maps a domain payload to the wire request.
func ToMulticastRequest(tokens []string, p notification.Payload) MulticastRequestDTO {
	badge := p.PlatformHints.APNs.Badge
	return MulticastRequestDTO{
		Tokens: tokens,
		Notification: NotificationDTO{
			Title: p.Title,
			Body:  p.Body,
		},
		Android: AndroidConfigDTO{
			Priority: p.PlatformHints.Android.Priority,
			Notification: AndroidNotificationDTO{
				ChannelID:  p.PlatformHints.Android.ChannelID,
				Visibility: p.PlatformHints.Android.Visibility,
			},
		},
		APNs: APNsConfigDTO{
			Payload: APNsPayloadDTO{
				APS: APSDTO{
					Sound: p.PlatformHints.APNs.Sound,
					Badge: &badge,
				},
			},
		},
		Data: p.ContextData(),
	}
}

// ToGatewayResponse maps the wire response to the domain type.
func (r BatchResponseDTO) ToGatewayResponse() *notification.GatewayResponse {
	out := &notification.GatewayResponse{
		SuccessCount: r.SuccessCount,
		FailureCount: r.FailureCount,
		Responses:    make([]notification.SendResult, len(r.Responses)),
	}
	for i, res := range r.Responses {
		out.Responses[i] = notification.SendResult{
			Success:   res.Success,
			MessageID: res.MessageID,
		}
		if !res.Success {
			out.Responses[i].Reason = "unknown"
			if res.Error != nil && res.Error.Code != "" {
				out.Responses[i].Reason = res.Error.Code
			}
		}
	}
	return out
}
