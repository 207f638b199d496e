// # Error Codes Reference
//
// Technical errors are mapped to user-facing messages carrying a code that
// users can quote to support staff.
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source unavailable: the reconciliation view could not be loaded
//	         Action: check the warehouse configuration and credentials
//	         Matches: ErrSourceUnavailable, "connection refused"
//
//	SRC002 - Timeout: the load took longer than SOURCE_QUERY_TIMEOUT
//	         Action: try again in a few moments
//	         Matches: "context deadline exceeded", "timeout"
//
//	SRC003 - Cancelled: the request was abandoned before the load finished
//	         Matches: "context canceled"
//
// # Schema and Conversion (SCH001, DATE001, VAL001)
//
//	SCH001  - Missing column: a required column is absent from the view
//	DATE001 - Date conversion: some timestamps could not be parsed (degraded)
//	VAL001  - Value conversion: some amounts or quantities could not be parsed (degraded)
//
// # Filter and Export (FLT001, EXP001, REQ001)
//
//	FLT001 - No data for the selected filters (informational)
//	EXP001 - Export failure
//	EXP002 - Too many exports in progress (retry later)
//	REQ001 - Invalid filter parameter
//
// # Default Error (ERR000)
//
// Fallback when no sentinel or pattern matches.

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors of the reconciliation error taxonomy.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrDateConversion    = errors.New("date conversion failed")
	ErrValueConversion   = errors.New("value conversion failed")
	ErrEmptyFilterResult = errors.New("no data for selected filters")
	ErrMissingColumn     = errors.New("missing required column")
	ErrExport            = errors.New("export failed")
	ErrInvalidFilter     = errors.New("invalid filter")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errorPattern maps a sentinel or a technical message fragment to a user message.
type errorPattern struct {
	sentinel error
	pattern  string
	msg      UserMessage
}

// errorPatterns are checked in order; the first match wins. Timeouts and
// cancellations come first because they usually arrive wrapped in
// ErrSourceUnavailable.
var errorPatterns = []errorPattern{
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "A consulta de dados excedeu o tempo limite",
			Action:  "Tente novamente em alguns instantes",
			Code:    "SRC002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "A consulta de dados excedeu o tempo limite",
			Action:  "Tente novamente em alguns instantes",
			Code:    "SRC002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "A requisição foi cancelada",
			Action:  "Recarregue a página",
			Code:    "SRC003",
		},
	},
	{
		sentinel: ErrMissingColumn,
		msg: UserMessage{
			Message: "A visão de conciliação não possui uma coluna obrigatória",
			Action:  "Verifique a definição da visão no data warehouse",
			Code:    "SCH001",
		},
	},
	{
		sentinel: ErrSourceUnavailable,
		msg: UserMessage{
			Message: "Não foi possível carregar os dados de conciliação",
			Action:  "Verifique a configuração e as credenciais da fonte de dados",
			Code:    "SRC001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Não foi possível carregar os dados de conciliação",
			Action:  "Verifique a configuração e as credenciais da fonte de dados",
			Code:    "SRC001",
		},
	},
	{
		sentinel: ErrDateConversion,
		msg: UserMessage{
			Message: "Algumas datas não puderam ser convertidas",
			Action:  "Os registros afetados ficam fora dos filtros de data",
			Code:    "DATE001",
		},
	},
	{
		sentinel: ErrValueConversion,
		msg: UserMessage{
			Message: "Alguns valores não puderam ser convertidos",
			Action:  "Os valores afetados são tratados como ausentes",
			Code:    "VAL001",
		},
	},
	{
		sentinel: ErrEmptyFilterResult,
		msg: UserMessage{
			Message: "Nenhum dado encontrado para os filtros selecionados",
			Action:  "Ajuste os filtros",
			Code:    "FLT001",
		},
	},
	{
		sentinel: ErrTooManyExports,
		msg: UserMessage{
			Message: "Muitas exportações em andamento",
			Action:  "Aguarde alguns segundos e tente novamente",
			Code:    "EXP002",
		},
	},
	{
		sentinel: ErrExport,
		msg: UserMessage{
			Message: "Não foi possível gerar o relatório",
			Action:  "Tente novamente ou reduza o período selecionado",
			Code:    "EXP001",
		},
	},
	{
		sentinel: ErrInvalidFilter,
		msg: UserMessage{
			Message: "Parâmetro de filtro inválido",
			Action:  "Use datas no formato AAAA-MM-DD",
			Code:    "REQ001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Muitas requisições",
			Action:  "Aguarde um momento antes de tentar novamente",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "Ocorreu um erro inesperado",
	Action:  "Tente novamente ou contate o suporte",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if ep.sentinel != nil && errors.Is(err, ep.sentinel) {
			return ep.msg
		}
		if ep.pattern != "" && strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// UserError wraps a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// Display formats the message for terminals and logs:
// "Message (Code: XXX). Action".
func (e *UserError) Display() string {
	return fmt.Sprintf("%s (Code: %s). %s", e.User.Message, e.User.Code, e.User.Action)
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

// NoticeLevel grades a notice surfaced alongside a result.
type NoticeLevel string

const (
	LevelInfo    NoticeLevel = "info"
	LevelWarning NoticeLevel = "warning"
	LevelError   NoticeLevel = "error"
)

// Notice is a user-visible message attached to a load or view. Notices
// never carry partial data; they explain degraded or blocked states.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
	Err     error       `json:"-"`
}

// NewNotice builds a notice from err using its mapped user message.
func NewNotice(level NoticeLevel, err error, detail string) Notice {
	msg := MapError(err)
	return Notice{
		Level:   level,
		Code:    msg.Code,
		Message: msg.Message,
		Detail:  detail,
		Err:     err,
	}
}

// HasNotice reports whether any notice wraps target. Notices decoded from
// JSON have no Err and are matched by target's code instead.
func HasNotice(notices []Notice, target error) bool {
	code := MapError(target).Code
	for _, n := range notices {
		if n.Err != nil {
			if errors.Is(n.Err, target) {
				return true
			}
			continue
		}
		if code != defaultMessage.Code && n.Code == code {
			return true
		}
	}
	return false
}
