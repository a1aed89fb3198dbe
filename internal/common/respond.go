package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// Validate — общий валидатор тел запросов. В ошибках — имена полей из json-тегов.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorBody — формат ошибки в ответе API.
type errorBody struct {
	Error struct {
		Kind    Kind   `json:"kind"`
		Field   string `json:"field,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

// StatusFor сопоставляет вид ошибки с HTTP-кодом.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON пишет ответ в JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Ошибка записи ответа")
	}
}

// WriteError пишет ошибку. Внутренние ошибки не раскрываются клиенту.
func WriteError(w http.ResponseWriter, err error) {
	var body errorBody
	kind := KindOf(err)
	body.Error.Kind = kind

	var e *Error
	if errors.As(err, &e) {
		body.Error.Field = e.Field
		body.Error.Message = e.Message
	} else {
		log.WithError(err).Error("Внутренняя ошибка при обработке запроса")
		body.Error.Message = "внутренняя ошибка, повторите запрос"
	}
	WriteJSON(w, StatusFor(kind), body)
}

// DecodeJSON читает тело запроса и валидирует его тегами validate.
// Первая же ошибка валидации превращается в KindValidation с именем поля.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return Validation("body", "некорректный JSON: "+err.Error())
	}
	return ValidateStruct(dst)
}

// ValidateStruct прогоняет структуру через validator и переводит ошибку в *Error.
func ValidateStruct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return Validation(fe.Field(), "не проходит проверку "+fe.Tag())
	}
	return Validation("body", err.Error())
}

// PathInt64 читает числовой параметр пути ({id}).
func PathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, Validation(name, "ожидается положительное целое")
	}
	return v, nil
}

// QueryPage читает ?page=&limit=.
func QueryPage(r *http.Request) Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return NewPage(page, limit)
}
