package server

import (
	"net"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Eppu/micro-poll/broadcast"
	"github.com/Eppu/micro-poll/poll"
	"github.com/Eppu/micro-poll/utils"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	Network string
	Address string

	Service *poll.Service
	Hub     *broadcast.Hub

	// Limits counts requests per client; nil disables throttling.
	Limits      Counter
	CreateLimit int
	VoteLimit   int
}

type Server struct {
	app *fiber.App
	ln  net.Listener
}

type customLogger struct{}

func (*customLogger) Write(data []byte) (n int, err error) {
	log.Debugln(utils.B2S(data))
	return len(data), nil
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}

func NewServer(opts Options) *Server {
	ln, err := net.Listen(opts.Network, opts.Address)
	checkErr(err)

	server := &Server{
		ln:  ln,
		app: newApp(opts),
	}

	go func() {
		err = server.app.Listener(server.ln)
		if err != nil {
			log.Errorf("failed to start http server, err=%v", err)
		}
	}()

	return server
}

func newApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Output: &customLogger{},
	}))

	h := &handlers{svc: opts.Service}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(&fiber.Map{
			"message": "micro-poll is up",
		})
	})

	v1 := app.Group("/api/v1")
	v1.Post("/polls", rateLimit(opts.Limits, "create", opts.CreateLimit, "Too many poll creations. Try again later."), h.createPoll)
	v1.Get("/polls/:id", h.getPoll)
	v1.Post("/polls/:id/vote", rateLimit(opts.Limits, "vote", opts.VoteLimit, "Too many votes. Slow down!"), h.castVote)

	registerWS(app, opts.Service, opts.Hub)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(&fiber.Map{
			"status":  404,
			"message": "We don't know what you're looking for.",
		})
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	log.Errorf("internal err=%v", spew.Sdump(err))

	return c.SendStatus(500)
}

func (s *Server) Shutdown() error {
	return s.ln.Close()
}
