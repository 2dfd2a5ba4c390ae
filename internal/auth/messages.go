package auth

import "errors"

// Auth service errors
var (
	ErrValidation            = errors.New("request validation failed")
	ErrWeakPassword          = errors.New("password does not meet complexity requirements")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrPendingCodeStillValid = errors.New("a verification code is still pending for email")
	ErrAwaitingCompletion    = errors.New("verified registration is awaiting tenant completion")
	ErrNoPendingRegistration = errors.New("no pending registration for email")
	ErrNotVerified           = errors.New("email not verified")
	ErrTenantAlreadyExists   = errors.New("an active tenant already exists")
	ErrSlugTaken             = errors.New("tenant slug already taken")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrTenantSuspended       = errors.New("tenant suspended")
	ErrSessionRevoked        = errors.New("session revoked")
	ErrSessionNotFound       = errors.New("session not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvariantViolation    = errors.New("invariant violation")
)

// Error codes for API responses
const (
	CodeValidationError       = "VALIDATION_ERROR"
	CodeWeakPassword          = "WEAK_PASSWORD"
	CodeEmailExists           = "EMAIL_EXISTS"
	CodePendingCodeStillValid = "PENDING_CODE_STILL_VALID"
	CodeAwaitingCompletion    = "AWAITING_COMPLETION"
	CodeNoPendingRegistration = "NO_PENDING_REGISTRATION"
	CodeNotVerified           = "NOT_VERIFIED"
	CodeTenantAlreadyExists   = "TENANT_ALREADY_EXISTS"
	CodeSlugExists            = "SLUG_EXISTS"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeTenantSuspended       = "TENANT_SUSPENDED"
	CodeInvalidRefreshToken   = "INVALID_REFRESH_TOKEN"
	CodeSessionRevoked        = "SESSION_REVOKED"
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeAuthTokenMissing      = "AUTH_TOKEN_MISSING"
	CodeAuthTokenInvalid      = "AUTH_TOKEN_INVALID"
	CodeForbidden             = "FORBIDDEN"
	CodeInternalError         = "INTERNAL_ERROR"
)

// Verification outcome codes, returned in the body with success=false
const (
	CodeInvalidCode  = "INVALID_CODE"
	CodeExpiredCode  = "EXPIRED_CODE"
	CodeSignupClosed = "SIGNUP_CLOSED"
	CodeTenantFull   = "TENANT_FULL"
)

// User-facing messages
const (
	MsgInvalidRequest         = "Requisição inválida."
	MsgValidationFailed       = "Dados inválidos."
	MsgWeakPassword           = "A senha não atende aos requisitos de segurança."
	MsgEmailExists            = "Já existe um usuário cadastrado com este email."
	MsgPendingCodeStillValid  = "Já existe um código pendente para este email. Verifique sua caixa de entrada ou aguarde a expiração."
	MsgAwaitingCompletion     = "Seu email já foi verificado. Conclua o cadastro da organização."
	MsgNoPendingRegistration  = "Nenhum cadastro pendente para este email."
	MsgRegistrationStarted    = "Código de verificação enviado para o seu email."
	MsgRegistrationNotSent    = "Cadastro recebido, mas não foi possível enviar o código. Solicite um novo código."
	MsgCodeResent             = "Novo código de verificação enviado."
	MsgInvalidCode            = "Código inválido."
	MsgExpiredCode            = "Código expirado. Solicite um novo código."
	MsgVerifiedComplete       = "Email verificado. Conclua o cadastro da organização."
	MsgVerifiedMember         = "Email verificado com sucesso. Você já pode fazer login."
	MsgSignupClosed           = "O cadastro está fechado. Solicite um convite ao administrador."
	MsgTenantFull             = "A organização atingiu o limite de usuários."
	MsgNotVerified            = "Email não verificado."
	MsgTokenNotVerified       = "Token não encontrado ou não verificado."
	MsgTenantAlreadyExists    = "Já existe um tenant ativo no sistema."
	MsgSlugExists             = "Este identificador de organização já está em uso."
	MsgInvalidCredentials     = "Credenciais inválidas."
	MsgTenantSuspended        = "A organização está suspensa."
	MsgInvalidRefreshToken    = "Token de atualização inválido ou expirado."
	MsgSessionRevoked         = "Sessão encerrada. Faça login novamente."
	MsgSessionNotFound        = "Sessão não encontrada."
	MsgUserNotFound           = "Usuário não encontrado."
	MsgTokenMissing           = "Token de autenticação ausente."
	MsgTokenInvalid           = "Token de autenticação inválido ou expirado."
	MsgForbidden              = "Acesso restrito a administradores."
	MsgLoggedOut              = "Logout realizado com sucesso."
	MsgInternalError          = "Erro interno. Tente novamente mais tarde."
	MsgRegistrationCompleted  = "Cadastro concluído com sucesso."
	MsgLoginSucceeded         = "Login realizado com sucesso."
	MsgSessionsRevoked        = "Sessões encerradas."
	MsgSecurityBlocksReleased = "Bloqueios removidos."
)
