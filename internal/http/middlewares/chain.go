// Package middlewares contiene los decoradores HTTP transversales.
package middlewares

import "net/http"

// Middleware es un decorador de http.Handler
type Middleware func(http.Handler) http.Handler
