package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows browser dApp frontends to call the API directly.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Authorization, X-Request-ID, "+
				HeaderWalletAddress+", "+HeaderWalletSignature+", "+HeaderWalletChain+", "+HeaderWalletPubkey)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
