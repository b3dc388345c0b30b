package leads

import "errors"

// ErrMalformedBody is returned when a submission body is not a JSON object.
var ErrMalformedBody = errors.New("leads: malformed request body")

// Client-facing messages. The site is Russian-only.
const (
	msgNameLength   = "Имя должно быть от 2 до 50 символов"
	msgPhoneFormat  = "Неверный формат телефона"
	msgModelEmpty   = "Модель не может быть пустой"
	msgValidation   = "Ошибка валидации"
	msgBadRequest   = "Некорректный формат запроса"
	msgRateLimited  = "Слишком много заявок, попробуйте позже"
	msgInternal     = "Внутренняя ошибка сервера"
	msgModelOK      = "Заявка успешно принята"
	msgLeaseOK      = "Заявка на лизинг успешно принята"
	msgContactsOK   = "Контактные данные успешно получены"
	subjectModel    = "Заявка на модель техники"
	subjectLease    = "Заявка на специальный лизинг"
	subjectContacts = "Заявка на обратный звонок"
)
