package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
)

func (s *Server) RequestSubscription(c *gin.Context) {
	companyID, ok := pathID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.RequestSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.RequestSubscription(c.Request.Context(), subscriptiondomain.RequestSubscriptionRequest{
		CompanyID:    companyID,
		PackageID:    strings.TrimSpace(req.PackageID),
		DurationType: strings.TrimSpace(req.DurationType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) StartTrial(c *gin.Context) {
	companyID, ok := pathID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.StartTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.StartTrial(c.Request.Context(), subscriptiondomain.StartTrialRequest{
		CompanyID: companyID,
		PackageID: strings.TrimSpace(req.PackageID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	companyID, ok := pathID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.CancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		CompanyID: companyID,
		Reason:    strings.TrimSpace(req.Reason),
		ActorID:   actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PreviewUpgrade(c *gin.Context) {
	companyID, ok := pathID(c)
	if !ok {
		return
	}

	var query subscriptiondomain.UpgradeRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.PreviewUpgrade(c.Request.Context(), subscriptiondomain.UpgradeRequest{
		CompanyID:    companyID,
		PackageID:    strings.TrimSpace(query.PackageID),
		DurationType: strings.TrimSpace(query.DurationType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) InitiateUpgrade(c *gin.Context) {
	companyID, ok := pathID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.InitiateUpgrade(c.Request.Context(), subscriptiondomain.UpgradeRequest{
		CompanyID:    companyID,
		PackageID:    strings.TrimSpace(req.PackageID),
		DurationType: strings.TrimSpace(req.DurationType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ApproveSubscription(c *gin.Context) {
	companyID, ok := pathID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Approve(c.Request.Context(), subscriptiondomain.ApproveRequest{
		CompanyID: companyID,
		InvoiceID: strings.TrimSpace(req.InvoiceID),
		StartDate: req.StartDate,
		ActorID:   actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectSubscription(c *gin.Context) {
	companyID, ok := pathID(c)
	if !ok {
		return
	}

	var req subscriptiondomain.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Reject(c.Request.Context(), subscriptiondomain.RejectRequest{
		CompanyID: companyID,
		InvoiceID: strings.TrimSpace(req.InvoiceID),
		Reason:    strings.TrimSpace(req.Reason),
		Note:      strings.TrimSpace(req.Note),
		ActorID:   actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
