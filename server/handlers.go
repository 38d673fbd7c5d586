package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Eppu/micro-poll/poll"

	log "github.com/sirupsen/logrus"
)

type handlers struct {
	svc *poll.Service
}

type createRequest struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit *int     `json:"timeLimit"`
}

type voteRequest struct {
	Option string `json:"option"`
}

func (h *handlers) createPoll(c *fiber.Ctx) error {
	req := &createRequest{}
	if err := c.BodyParser(req); err != nil {
		return c.Status(400).JSON(&fiber.Map{"error": "Invalid request body"})
	}
	if req.Question == "" || len(req.Options) == 0 || req.TimeLimit == nil {
		return c.Status(400).JSON(&fiber.Map{"error": "Missing fields"})
	}

	id, err := h.svc.CreatePoll(c.Context(), req.Question, req.Options, *req.TimeLimit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(201).JSON(&fiber.Map{"id": id})
}

func (h *handlers) getPoll(c *fiber.Ctx) error {
	p, err := h.svc.GetPoll(c.Context(), c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(p)
}

func (h *handlers) castVote(c *fiber.Ctx) error {
	req := &voteRequest{}
	if err := c.BodyParser(req); err != nil {
		return c.Status(400).JSON(&fiber.Map{"error": "Invalid request body"})
	}
	if req.Option == "" {
		return c.Status(400).JSON(&fiber.Map{"error": "Missing option"})
	}

	if _, err := h.svc.CastVote(c.Context(), c.Params("id"), req.Option); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(&fiber.Map{"success": true})
}

func respondErr(c *fiber.Ctx, err error) error {
	verr := &poll.ValidationError{}
	switch {
	case errors.As(err, &verr):
		return c.Status(400).JSON(&fiber.Map{"error": verr.Error()})
	case errors.Is(err, poll.ErrInvalidID):
		return c.Status(400).JSON(&fiber.Map{"error": "Invalid poll ID"})
	case errors.Is(err, poll.ErrInvalidOption):
		return c.Status(400).JSON(&fiber.Map{"error": "Invalid option"})
	case errors.Is(err, poll.ErrPollClosed):
		return c.Status(400).JSON(&fiber.Map{"error": "Poll is closed"})
	case errors.Is(err, poll.ErrNotFound):
		return c.Status(404).JSON(&fiber.Map{"error": "Poll not found"})
	default:
		log.Errorf("request, err=%v", err)
		return c.Status(500).JSON(&fiber.Map{"error": "Internal Server Error"})
	}
}
