package handlers

import (
	"github.com/gin-gonic/gin"

	"payables-relay/internal/chains"
	"payables-relay/internal/tokens"
)

// ListChainsHandler returns the registered chains and their explorer
// templates so frontends do not hardcode them.
// GET /api/chains
func ListChainsHandler(c *gin.Context) {
	type chainInfo struct {
		Name     string `json:"name"`
		Family   string `json:"family"`
		ChainID  uint16 `json:"chainId"`
		Explorer string `json:"explorer,omitempty"`
	}
	out := make([]chainInfo, 0)
	for _, ch := range chains.All() {
		info := chainInfo{
			Name:    ch.Name,
			Family:  ch.Family.String(),
			ChainID: ch.ChainID,
		}
		if url, err := chains.ExplorerURL(chains.ExplorerAddress, "", ch); err == nil {
			info.Explorer = url
		}
		out = append(out, info)
	}
	respondOK(c, "ok", out)
}

// ListTokensHandler returns the token catalog.
// GET /api/tokens
func ListTokensHandler(c *gin.Context) {
	respondOK(c, "ok", tokens.All())
}
