package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Health check
	// (GET /health)
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// Enqueue an outbound message
	// (POST /instances/{instanceId}/messages)
	EnqueueMessage(w http.ResponseWriter, r *http.Request, instanceId string)
	// Resume a suspended instance
	// (POST /instances/{instanceId}/resume)
	ResumeInstance(w http.ResponseWriter, r *http.Request, instanceId string)
	// Suspend sends of an instance
	// (POST /instances/{instanceId}/suspend)
	SuspendInstance(w http.ResponseWriter, r *http.Request, instanceId string)
	// List dead-lettered messages
	// (GET /messages/dead-letters)
	ListDeadLetters(w http.ResponseWriter, r *http.Request, params ListDeadLettersParams)
	// Provider webhook
	// (POST /webhooks/gateway)
	ReceiveWebhook(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

func (siw *ServerInterfaceWrapper) wrap(handler http.Handler) http.Handler {
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	return handler
}

// HealthCheck operation middleware
func (siw *ServerInterfaceWrapper) HealthCheck(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.HealthCheck(w, r)
	})).ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) instanceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var instanceId string

	err := runtime.BindStyledParameterWithOptions("simple", "instanceId", chi.URLParam(r, "instanceId"), &instanceId,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "instanceId", Err: err})
		return "", false
	}
	return instanceId, true
}

// EnqueueMessage operation middleware
func (siw *ServerInterfaceWrapper) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	instanceId, ok := siw.instanceID(w, r)
	if !ok {
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.EnqueueMessage(w, r, instanceId)
	})).ServeHTTP(w, r)
}

// ResumeInstance operation middleware
func (siw *ServerInterfaceWrapper) ResumeInstance(w http.ResponseWriter, r *http.Request) {
	instanceId, ok := siw.instanceID(w, r)
	if !ok {
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ResumeInstance(w, r, instanceId)
	})).ServeHTTP(w, r)
}

// SuspendInstance operation middleware
func (siw *ServerInterfaceWrapper) SuspendInstance(w http.ResponseWriter, r *http.Request) {
	instanceId, ok := siw.instanceID(w, r)
	if !ok {
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.SuspendInstance(w, r, instanceId)
	})).ServeHTTP(w, r)
}

// ListDeadLetters operation middleware
func (siw *ServerInterfaceWrapper) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	var err error

	var params ListDeadLettersParams

	err = runtime.BindQueryParameter("form", true, false, "instance_id", r.URL.Query(), &params.InstanceId)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "instance_id", Err: err})
		return
	}

	err = runtime.BindQueryParameter("form", true, false, "page", r.URL.Query(), &params.Page)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "page", Err: err})
		return
	}

	err = runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return
	}

	err = runtime.BindQueryParameter("form", true, false, "status", r.URL.Query(), &params.Status)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "status", Err: err})
		return
	}

	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListDeadLetters(w, r, params)
	})).ServeHTTP(w, r)
}

// ReceiveWebhook operation middleware
func (siw *ServerInterfaceWrapper) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	siw.wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ReceiveWebhook(w, r)
	})).ServeHTTP(w, r)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Handler creates http.Handler with routing matching the contract.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.HealthCheck)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/instances/{instanceId}/messages", wrapper.EnqueueMessage)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/instances/{instanceId}/resume", wrapper.ResumeInstance)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/instances/{instanceId}/suspend", wrapper.SuspendInstance)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/messages/dead-letters", wrapper.ListDeadLetters)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/webhooks/gateway", wrapper.ReceiveWebhook)
	})

	return r
}
