package twilio

import (
	"encoding/xml"
	"fmt"
)

type messagingResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// MessagingResponse renders a TwiML reply document for the webhook
// response channel.
func MessagingResponse(messages ...string) ([]byte, error) {
	body, err := xml.Marshal(messagingResponse{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("twilio: render twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
