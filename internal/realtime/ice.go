package realtime

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"

	"github.com/aura-meet/backend/pkg/response"
)

// ICEConfig lists the STUN/TURN servers browsers should use for their peer connections.
type ICEConfig struct {
	URLs       []string
	Username   string
	Credential string
}

// ICEServers groups STUN urls into one server entry and gives every TURN url the credentials.
func (c ICEConfig) ICEServers() []webrtc.ICEServer {
	var stun []string
	var servers []webrtc.ICEServer
	for _, u := range c.URLs {
		u = strings.TrimSpace(u)
		switch {
		case u == "":
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			servers = append(servers, webrtc.ICEServer{
				URLs:           []string{u},
				Username:       c.Username,
				Credential:     c.Credential,
				CredentialType: webrtc.ICECredentialTypePassword,
			})
		default:
			stun = append(stun, u)
		}
	}
	if len(stun) > 0 {
		servers = append([]webrtc.ICEServer{{URLs: stun}}, servers...)
	}
	return servers
}

// ICEServersHandler handles GET /ice-servers.
func ICEServersHandler(cfg ICEConfig) gin.HandlerFunc {
	servers := cfg.ICEServers()
	return func(c *gin.Context) {
		response.OK(c, gin.H{"iceServers": servers})
	}
}
