/*
Copyright 2024 Settld Authors.

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
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/settld-io/settld"
	"github.com/settld-io/settld/api/model"
	"github.com/settld-io/settld/config"
	"github.com/settld-io/settld/internal/apierror"
)

// RunReconciliation accepts a settlement file upload and runs it against the
// tenant's ledger. Run parameters ride along as multipart form fields; unset
// ones fall back to the configured defaults.
func (a Api) RunReconciliation(c *gin.Context) {
	tenantID := c.GetHeader("X-Tenant-Id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-Id header is required"})
		return
	}
	actorID := c.GetHeader("X-Actor-Id")

	var req model.RunReconciliation
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateRunReconciliation(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed"})
		return
	}

	applyRunDefaults(&req)

	result, err := a.settld.ReconcileSettlementFile(c.Request.Context(), req.ToReconciliationRequest(raw, tenantID, actorID))
	if err != nil {
		// Fatal input errors mean the file itself cannot be reconciled; the
		// upload was well-formed, its content was not.
		if settld.IsFatalInputError(err) {
			apiErr := apierror.NewAPIError(apierror.ErrUnprocessable, err.Error(), err)
			c.JSON(apierror.MapErrorToHTTPStatus(apiErr), gin.H{"error": apiErr.Error()})
			return
		}
		logrus.Error(err)
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": "Failed to run reconciliation"})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetSettlement retrieves a settlement summary by its id.
func (a Api) GetSettlement(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /settlements/:id"})
		return
	}

	settlement, err := a.settld.GetSettlement(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settlement)
}

// GetMatchOutcomes retrieves the per-row outcomes of a settlement.
func (a Api) GetMatchOutcomes(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /settlements/:id/outcomes"})
		return
	}

	outcomes, err := a.settld.GetMatchOutcomes(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, outcomes)
}

// GetSettlements lists the tenant's most recent settlements.
func (a Api) GetSettlements(c *gin.Context) {
	tenantID := c.GetHeader("X-Tenant-Id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-Id header is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = parsed
	}

	settlements, err := a.settld.GetSettlements(c.Request.Context(), tenantID, limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settlements)
}

// applyRunDefaults fills unset run parameters from the server configuration.
func applyRunDefaults(req *model.RunReconciliation) {
	conf, err := config.Fetch()
	if err != nil {
		return
	}
	if req.AmountTolerance == 0 {
		req.AmountTolerance = conf.Reconciliation.AmountTolerance
	}
	if req.DateWindowDays == nil {
		req.DateWindowDays = ptr.Int(conf.Reconciliation.DateWindowDays)
	}
	if req.MatchThreshold == 0 {
		req.MatchThreshold = conf.Reconciliation.MatchThreshold
	}
	if req.PartialThreshold == 0 {
		req.PartialThreshold = conf.Reconciliation.PartialThreshold
	}
	if req.Currency == "" {
		req.Currency = conf.Reconciliation.DefaultCurrency
	}
}
