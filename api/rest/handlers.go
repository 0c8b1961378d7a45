package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// healthCheck handles GET /health.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// readyCheck handles GET /ready. The server is ready once the scheduler is
// running.
func (s *Server) readyCheck(c *fiber.Ctx) error {
	ready := s.orc.GetStatus().Scheduler.Running
	status := "ready"
	if !ready {
		status = "not_ready"
	}

	return c.JSON(ReadyResponse{
		Ready:     ready,
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// getStatus handles GET /api/v1/status.
func (s *Server) getStatus(c *fiber.Ctx) error {
	return c.JSON(s.orc.GetStatus())
}

// listAgents handles GET /api/v1/agents.
func (s *Server) listAgents(c *fiber.Ctx) error {
	return c.JSON(AgentsResponse{
		Agents: s.orc.Registry().Infos(),
	})
}

// submitTask handles POST /api/v1/tasks.
func (s *Server) submitTask(c *fiber.Ctx) error {
	var req TaskSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}
	if req.Task == nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "'task' must be provided",
		})
	}

	taskID, err := s.orc.SubmitTask(c.Context(), req.Task)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error:   "submission_failed",
			Message: "Failed to submit task: " + err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(TaskSubmitResponse{
		TaskID: taskID,
		Status: "submitted",
	})
}

// getTask handles GET /api/v1/tasks/:id.
func (s *Server) getTask(c *fiber.Ctx) error {
	taskID := c.Params("id")

	node, ok := s.orc.Task(taskID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Unknown task: " + taskID,
		})
	}

	return c.JSON(TaskResponse{
		TaskID:        node.Task.ID,
		Status:        node.Status,
		AssignedAgent: node.AssignedAgent,
		Result:        node.Result,
	})
}

// runWorkflow handles POST /api/v1/workflows. The workflow runs to
// completion before the response is written.
func (s *Server) runWorkflow(c *fiber.Ctx) error {
	var req WorkflowSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		})
	}
	if len(req.Tasks) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "'tasks' must be non-empty",
		})
	}

	output, err := s.orc.ExecuteWorkflow(c.Context(), req.WorkflowID, req.Tasks, req.UserIntent)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error:   "workflow_failed",
			Message: err.Error(),
		})
	}

	return c.JSON(output)
}

// getWorkflowContext handles GET /api/v1/workflows/:id/context.
func (s *Server) getWorkflowContext(c *fiber.Ctx) error {
	workflowID := c.Params("id")

	wctx, ok := s.orc.Broker().Context(workflowID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Unknown workflow: " + workflowID,
		})
	}

	return c.JSON(wctx)
}
