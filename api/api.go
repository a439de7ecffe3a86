/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/blnkfinance/docaudit"
	"github.com/blnkfinance/docaudit/api/middleware"
	"github.com/blnkfinance/docaudit/config"
	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	auditor *docaudit.Auditor
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/jobs", a.SubmitJob)
	router.GET("/jobs", a.GetJobs)
	router.GET("/jobs/:id", a.GetJob)
	router.GET("/jobs/:id/events", a.GetJobEvents)
	router.POST("/jobs/:id/requeue", a.RequeueJob)

	router.GET("/customers/:id", a.GetCustomer)

	router.GET("/health/workers", a.WorkerHealth)
	return a.router
}

func NewAPI(auditor *docaudit.Auditor, conf *config.Configuration) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{auditor: auditor, router: r}
}

func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
