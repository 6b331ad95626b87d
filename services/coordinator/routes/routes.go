// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the coordinator's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianRecall/services/coordinator/handlers"
	"github.com/AleutianAI/AleutianRecall/services/coordinator/middleware"
)

// SetupRoutes registers every coordinator route on the router.
//
// The admin group is guarded by adminAuth. Local deployments pass
// middleware.NopAuthProvider; deployments with an admin token pass
// middleware.StaticTokenProvider.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers, adminAuth middleware.AuthProvider) {
	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	context := router.Group("/context")
	{
		context.POST("/multi_turn", h.HandleMultiTurnContext)
	}

	feedback := router.Group("/feedback")
	{
		feedback.POST("/evaluate", h.HandleFeedback)
	}

	session := router.Group("/session")
	{
		session.GET("/:sessionId", h.HandleGetSession)
		session.DELETE("/:sessionId", h.HandleDeleteSession)
	}

	discovery := router.Group("/discovery")
	{
		discovery.GET("/capabilities", h.HandleGetCapabilities)
		discovery.POST("/capabilities", h.HandlePostCapabilities)
		discovery.POST("/token_budget", h.HandleTokenBudget)
	}

	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(adminAuth))
	{
		admin.GET("/breakers", h.HandleListBreakers)
		admin.POST("/epoch/bump", h.HandleBumpEpoch)
		admin.GET("/cache", h.HandleCacheStats)
		admin.GET("/sessions", h.HandleAdminSessions)
	}
}
