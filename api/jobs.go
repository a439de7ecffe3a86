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
	"strconv"
	"strings"

	"github.com/blnkfinance/docaudit"
	"github.com/blnkfinance/docaudit/internal/apierror"
	"github.com/blnkfinance/docaudit/model"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SubmitJob accepts either a multipart upload (fields customer_id and file) or a JSON body
// pointing at a file already on the worker's disk.
func (a Api) SubmitJob(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		a.uploadJob(c)
		return
	}

	var submission docaudit.Submission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	job, err := a.auditor.Submit(c.Request.Context(), submission)
	if err != nil {
		respondSubmitError(c, job, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (a Api) uploadJob(c *gin.Context) {
	customerID := c.PostForm("customer_id")
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	job, err := a.auditor.Ingest(c.Request.Context(), docaudit.Upload{
		CustomerID: customerID,
		Filename:   header.Filename,
		Body:       file,
	})
	if err != nil {
		respondSubmitError(c, job, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// respondSubmitError keeps the job in the body when it was saved but could not be queued.
func respondSubmitError(c *gin.Context, job *model.Job, err error) {
	body := gin.H{"error": err.Error()}
	if apierror.CodeOf(err) == apierror.ErrUnavailable && job != nil {
		body["job"] = job
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), body)
}

func (a Api) GetJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.auditor.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetJobs(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.auditor.GetJobs(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetJobEvents(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.auditor.GetJobEvents(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) RequeueJob(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	job, err := a.auditor.Requeue(c.Request.Context(), id)
	if err != nil {
		respondSubmitError(c, job, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (a Api) GetCustomer(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.auditor.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) WorkerHealth(c *gin.Context) {
	limit, _, err := pagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.auditor.Health(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func pagination(c *gin.Context) (limit, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		return 0, 0, apierror.NewAPIError(apierror.ErrBadRequest, "limit must be a positive integer", nil)
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, apierror.NewAPIError(apierror.ErrBadRequest, "offset must be a non negative integer", nil)
	}
	return limit, offset, nil
}
