// Package node names a process that exposes an admin HTTP surface.
package node

import "github.com/gin-gonic/gin"

type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
}
