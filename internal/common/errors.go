// Package common — errors.go определяет таксономию ошибок и доменные ошибки,
// которые используются во всех модулях движка.
// Вид ошибки (Kind) позволяет HTTP-слою выбрать код ответа,
// а вызывающему — понять, исправима ли ошибка правкой входных данных.
package common

import (
	"errors"
	"fmt"
)

// Kind — вид ошибки.
type Kind string

const (
	KindValidation Kind = "validation" // Некорректное или отсутствующее поле
	KindConflict   Kind = "conflict"   // Сущность не в нужном состоянии
	KindNotFound   Kind = "not_found"  // Неизвестный ID
	KindInternal   Kind = "internal"   // Сбой хранилища/транзакции

	KindUnauthorized Kind = "unauthorized" // Нет или истекла сессия оператора
)

// Error — типизированная ошибка движка.
type Error struct {
	Kind    Kind
	Field   string // Имя поля для KindValidation
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Validation создаёт ошибку валидации для поля.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Required — частый случай: обязательное поле пустое.
func Required(field string) *Error {
	return Validation(field, "обязательное поле")
}

// Conflict создаёт ошибку конфликта состояния.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NotFound создаёт ошибку «не найдено».
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " не найден(а)"}
}

// KindOf определяет вид ошибки. Всё, что не *Error, считается internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Ошибки батлов
var (
	ErrBattleNotFound = NotFound("батл")
	// ErrBattleNotOpen — батл уже рассчитан или отменён
	ErrBattleNotOpen = Conflict("батл не открыт: уже рассчитан или отменён")
	// ErrBattleHasParticipants — удалять можно только батл без участников
	ErrBattleHasParticipants = Conflict("у батла есть участники: сначала отмените его")
	// ErrEntryFeeLocked — ставку нельзя менять после первого участника
	ErrEntryFeeLocked = Conflict("размер ставки нельзя менять, когда есть участники")
	// ErrBattleStarted — событие уже началось, вход закрыт
	ErrBattleStarted = Conflict("событие уже началось, вход в батл закрыт")
	// ErrAlreadyJoined — пользователь уже участвует в батле
	ErrAlreadyJoined = Conflict("пользователь уже участвует в этом батле")
)

// Ошибки выводов (редемпшенов)
var (
	ErrRedemptionNotFound = NotFound("заявка на вывод")
	// ErrRedemptionNotPending — одобрить можно только заявку в статусе pending
	ErrRedemptionNotPending = Conflict("заявка уже рассмотрена")
	// ErrRedemptionCompleted — завершённую заявку нельзя пометить
	ErrRedemptionCompleted = Conflict("заявка уже завершена или помечена")
)

// Ошибки экономики
var (
	// ErrInsufficientBalance — недостаточно очков на счёте
	ErrInsufficientBalance = Conflict("недостаточно очков на счёте")
	// ErrInsufficientRevenue — вывод больше доступной выручки
	ErrInsufficientRevenue = Conflict("недостаточно доступной выручки для вывода")
	// ErrUserBanned — пользователь забанен
	ErrUserBanned = Conflict("пользователь заблокирован")
	// ErrDuplicateReference — платёж с таким reference уже проведён
	ErrDuplicateReference = Conflict("платёж с таким reference уже проведён")
)

// Ошибки операторов
var (
	// ErrNotAdmin — пользователь не является оператором
	ErrNotAdmin = &Error{Kind: KindUnauthorized, Message: "у вас нет прав оператора"}
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = &Error{Kind: KindUnauthorized, Message: "неверный пароль"}
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = Conflict("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла или не существует
	ErrSessionExpired = &Error{Kind: KindUnauthorized, Message: "сессия истекла, авторизуйтесь заново"}
)
