package route

import (
	"sort"
	"sync"

	"github.com/chirino/unimsg/internal/aggregator"
	"github.com/gin-gonic/gin"
)

// RouterLoader mounts a plugin's routes on the gin engine. Management loaders
// receive a nil service.
type RouterLoader func(r *gin.Engine, svc *aggregator.Service) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// When no dedicated management port is configured, these are mounted on the main server.
	RouteTypeManagement
)

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Name   string
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu       sync.Mutex
	plugins  []Plugin
	isSorted bool
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
	isSorted = false
}

func byType(t RouteType) []Plugin {
	mu.Lock()
	defer mu.Unlock()
	if !isSorted {
		sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
		isSorted = true
	}
	var out []Plugin
	for _, p := range plugins {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// Main returns the RouteTypeMain plugins, sorted by order.
func Main() []Plugin {
	return byType(RouteTypeMain)
}

// Management returns the RouteTypeManagement plugins, sorted by order.
func Management() []Plugin {
	return byType(RouteTypeManagement)
}
