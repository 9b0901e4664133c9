package proxy

import "github.com/ghettovoice/sipproxy/internal/types"

// ResponseStatus is a SIP response status code.
type ResponseStatus = types.ResponseStatus

const (
	ResponseStatusTrying                      = types.ResponseStatusTrying
	ResponseStatusRinging                     = types.ResponseStatusRinging
	ResponseStatusSessionProgress             = types.ResponseStatusSessionProgress
	ResponseStatusOK                          = types.ResponseStatusOK
	ResponseStatusMultipleChoices             = types.ResponseStatusMultipleChoices
	ResponseStatusMovedTemporarily            = types.ResponseStatusMovedTemporarily
	ResponseStatusBadRequest                  = types.ResponseStatusBadRequest
	ResponseStatusUnauthorized                = types.ResponseStatusUnauthorized
	ResponseStatusForbidden                   = types.ResponseStatusForbidden
	ResponseStatusNotFound                    = types.ResponseStatusNotFound
	ResponseStatusMethodNotAllowed            = types.ResponseStatusMethodNotAllowed
	ResponseStatusProxyAuthenticationRequired = types.ResponseStatusProxyAuthenticationRequired
	ResponseStatusRequestTimeout              = types.ResponseStatusRequestTimeout
	ResponseStatusUnsupportedURIScheme        = types.ResponseStatusUnsupportedURIScheme
	ResponseStatusTemporarilyUnavailable      = types.ResponseStatusTemporarilyUnavailable
	ResponseStatusCallTransactionDoesNotExist = types.ResponseStatusCallTransactionDoesNotExist
	ResponseStatusLoopDetected                = types.ResponseStatusLoopDetected
	ResponseStatusTooManyHops                 = types.ResponseStatusTooManyHops
	ResponseStatusBusyHere                    = types.ResponseStatusBusyHere
	ResponseStatusRequestTerminated           = types.ResponseStatusRequestTerminated
	ResponseStatusServerInternalError         = types.ResponseStatusServerInternalError
	ResponseStatusNotImplemented              = types.ResponseStatusNotImplemented
	ResponseStatusServiceUnavailable          = types.ResponseStatusServiceUnavailable
	ResponseStatusBusyEverywhere              = types.ResponseStatusBusyEverywhere
	ResponseStatusDecline                     = types.ResponseStatusDecline
	ResponseStatusDoesNotExistAnywhere        = types.ResponseStatusDoesNotExistAnywhere
)

// RequestMethod is a SIP request method.
type RequestMethod = types.RequestMethod

const (
	RequestMethodAck      = types.RequestMethodAck
	RequestMethodBye      = types.RequestMethodBye
	RequestMethodCancel   = types.RequestMethodCancel
	RequestMethodInvite   = types.RequestMethodInvite
	RequestMethodMessage  = types.RequestMethodMessage
	RequestMethodOptions  = types.RequestMethodOptions
	RequestMethodRegister = types.RequestMethodRegister
)
