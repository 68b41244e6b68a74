package internal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServers reads ICE_SERVERS, a JSON list shaped like the browser
// RTCIceServer dictionary. An empty value yields no server.
func ParseICEServers(raw string) ([]webrtc.ICEServer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []webrtc.ICEServer{}, nil
	}

	var servers []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, fmt.Errorf("ICE_SERVERS: %w", err)
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, server := range servers {
		var urls []string
		for _, url := range server.URLs {
			if url = strings.TrimSpace(url); url != "" {
				urls = append(urls, url)
			}
		}
		pcServer := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(server.Username)}
		if server.Credential != "" {
			pcServer.Credential = server.Credential
		}
		if err := validateICEServer(pcServer); err != nil {
			return nil, fmt.Errorf("ICE_SERVERS[%d]: %w", i, err)
		}
		out = append(out, pcServer)
	}
	return out, nil
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return fmt.Errorf("missing urls")
	}
	requiresCredentials := false
	for _, url := range server.URLs {
		switch {
		case strings.HasPrefix(url, "stun:"), strings.HasPrefix(url, "stuns:"):
		case strings.HasPrefix(url, "turn:"), strings.HasPrefix(url, "turns:"):
			requiresCredentials = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
	}
	if requiresCredentials {
		cred, _ := server.Credential.(string)
		if server.Username == "" || cred == "" {
			return fmt.Errorf("turn urls require username and credential")
		}
	}
	return nil
}
