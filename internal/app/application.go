package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Rorical/PromptMachine/internal/config"
	"github.com/Rorical/PromptMachine/internal/core"
	"github.com/Rorical/PromptMachine/internal/dispatcher"
	"github.com/Rorical/PromptMachine/internal/eventbus"
	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/transport"
)

// Application manages the complete application lifecycle
type Application struct {
	config     *config.Config
	eventBus   *eventbus.EventBus
	dispatcher *dispatcher.EventDispatcher
	session    *core.Session
	model      *AppModel
}

type AppModel struct {
	appModel   models.AppModel
	dispatcher *dispatcher.EventDispatcher
}

func NewApplication(cfg *config.Config, prompt string, log logger.Logger) *Application {
	eb := eventbus.NewEventBus()
	disp := dispatcher.NewEventDispatcher(eb, log)
	session := core.NewSession(NewTransport(cfg), eb, prompt, log)

	appModel := models.NewAppModel(prompt)
	appModel.ShowLogs = true

	return &Application{
		config:     cfg,
		eventBus:   eb,
		dispatcher: disp,
		session:    session,
		model: &AppModel{
			appModel:   appModel,
			dispatcher: disp,
		},
	}
}

// NewTransport builds the relay client described by cfg.
func NewTransport(cfg *config.Config) *transport.Client {
	return transport.NewClient(transport.Config{
		URL:         cfg.Server.RelayURL,
		MaxAttempts: cfg.Server.MaxAttempts,
		Delay:       cfg.RetryDelay(),
		Username:    cfg.Server.Auth.Username,
		Password:    cfg.Server.Auth.Password,
	})
}

func (app *Application) Start() error {
	app.dispatcher.Start()
	app.session.Start()
	app.session.Announce(
		"PromptMachine - relay "+app.config.Server.RelayURL,
		"Edit the prompt, press ctrl+g to generate or tab to describe a modification",
	)

	p := tea.NewProgram(app.model, tea.WithAltScreen())
	_, err := p.Run()

	return err
}

func (app *Application) Stop() {
	app.session.Stop()
	app.dispatcher.Stop()
	app.eventBus.Close()
}
