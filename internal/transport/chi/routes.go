package chi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface is the set of handlers mounted by HandlerWithOptions.
type ServerInterface interface {
	// (POST /search)
	SearchStudies(w http.ResponseWriter, r *http.Request)
	// (GET /search)
	SearchStudiesQuery(w http.ResponseWriter, r *http.Request, params SearchParams)
	// (GET /studies/{id})
	GetStudy(w http.ResponseWriter, r *http.Request, id int64)
	// (POST /admin/studies)
	CreateStudy(w http.ResponseWriter, r *http.Request)
	// (GET /health)
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	Metrics(w http.ResponseWriter, r *http.Request)
}

// MiddlewareFunc wraps a single operation handler.
type MiddlewareFunc func(http.Handler) http.Handler

// InvalidParamFormatError reports a parameter that could not be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	AdminMiddlewares []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// serverInterfaceWrapper binds request parameters before calling the handler.
type serverInterfaceWrapper struct {
	handler            ServerInterface
	handlerMiddlewares []MiddlewareFunc
	errorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *serverInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.Handler) {
	for _, m := range siw.handlerMiddlewares {
		h = m(h)
	}
	h.ServeHTTP(w, r)
}

func (siw *serverInterfaceWrapper) SearchStudies(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.SearchStudies))
}

func (siw *serverInterfaceWrapper) SearchStudiesQuery(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	query := r.URL.Query()

	bindings := []struct {
		name string
		dest any
	}{
		{"zip", &params.Zip},
		{"conditions_include", &params.ConditionsInclude},
		{"conditions_exclude", &params.ConditionsExclude},
		{"query_text", &params.QueryText},
		{"page", &params.Page},
		{"limit", &params.Limit},
		{"near_lat", &params.NearLat},
		{"near_lon", &params.NearLon},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: b.name, Err: err})
			return
		}
	}

	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.handler.SearchStudiesQuery(w, r, params)
	}))
}

func (siw *serverInterfaceWrapper) GetStudy(w http.ResponseWriter, r *http.Request) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return
	}

	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.handler.GetStudy(w, r, id)
	}))
}

func (siw *serverInterfaceWrapper) CreateStudy(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.CreateStudy))
}

func (siw *serverInterfaceWrapper) HealthCheck(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.HealthCheck))
}

func (siw *serverInterfaceWrapper) Metrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.Metrics))
}

// HandlerWithOptions mounts si on a chi router. Admin routes additionally
// pass through AdminMiddlewares.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
		}
	}
	wrapper := &serverInterfaceWrapper{
		handler:            si,
		handlerMiddlewares: options.Middlewares,
		errorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/search", wrapper.SearchStudies)
		r.Get(options.BaseURL+"/search", wrapper.SearchStudiesQuery)
		r.Get(options.BaseURL+"/studies/{id}", wrapper.GetStudy)
		r.Get(options.BaseURL+"/health", wrapper.HealthCheck)
		r.Get(options.BaseURL+"/metrics", wrapper.Metrics)
	})
	r.Group(func(r chi.Router) {
		for _, m := range options.AdminMiddlewares {
			r.Use(m)
		}
		r.Post(options.BaseURL+"/admin/studies", wrapper.CreateStudy)
	})

	return r
}
