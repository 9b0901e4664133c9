package types

import "fmt"

const (
	ResponseStatusTrying          ResponseStatus = 100
	ResponseStatusRinging         ResponseStatus = 180
	ResponseStatusCallIsForwarded ResponseStatus = 181
	ResponseStatusQueued          ResponseStatus = 182
	ResponseStatusSessionProgress ResponseStatus = 183

	ResponseStatusOK       ResponseStatus = 200
	ResponseStatusAccepted ResponseStatus = 202

	ResponseStatusMultipleChoices  ResponseStatus = 300
	ResponseStatusMovedPermanently ResponseStatus = 301
	ResponseStatusMovedTemporarily ResponseStatus = 302
	ResponseStatusUseProxy         ResponseStatus = 305

	ResponseStatusBadRequest                  ResponseStatus = 400
	ResponseStatusUnauthorized                ResponseStatus = 401
	ResponseStatusForbidden                   ResponseStatus = 403
	ResponseStatusNotFound                    ResponseStatus = 404
	ResponseStatusMethodNotAllowed            ResponseStatus = 405
	ResponseStatusProxyAuthenticationRequired ResponseStatus = 407
	ResponseStatusRequestTimeout              ResponseStatus = 408
	ResponseStatusGone                        ResponseStatus = 410
	ResponseStatusUnsupportedURIScheme        ResponseStatus = 416
	ResponseStatusTemporarilyUnavailable      ResponseStatus = 480
	ResponseStatusCallTransactionDoesNotExist ResponseStatus = 481
	ResponseStatusLoopDetected                ResponseStatus = 482
	ResponseStatusTooManyHops                 ResponseStatus = 483
	ResponseStatusAddressIncomplete           ResponseStatus = 484
	ResponseStatusBusyHere                    ResponseStatus = 486
	ResponseStatusRequestTerminated           ResponseStatus = 487
	ResponseStatusNotAcceptableHere           ResponseStatus = 488

	ResponseStatusServerInternalError ResponseStatus = 500
	ResponseStatusNotImplemented      ResponseStatus = 501
	ResponseStatusBadGateway          ResponseStatus = 502
	ResponseStatusServiceUnavailable  ResponseStatus = 503
	ResponseStatusGatewayTimeout      ResponseStatus = 504

	ResponseStatusBusyEverywhere       ResponseStatus = 600
	ResponseStatusDecline              ResponseStatus = 603
	ResponseStatusDoesNotExistAnywhere ResponseStatus = 604
	ResponseStatusNotAcceptable606     ResponseStatus = 606
)

// ResponseStatus is a SIP response status code.
type ResponseStatus uint

func (s ResponseStatus) IsValid() bool { return s >= 100 && s < 700 }

func (s ResponseStatus) IsProvisional() bool { return s >= 100 && s < 200 }

func (s ResponseStatus) IsSuccessful() bool { return s >= 200 && s < 300 }

func (s ResponseStatus) IsRedirection() bool { return s >= 300 && s < 400 }

func (s ResponseStatus) IsRequestFailure() bool { return s >= 400 && s < 500 }

func (s ResponseStatus) IsServerFailure() bool { return s >= 500 && s < 600 }

func (s ResponseStatus) IsGlobalFailure() bool { return s >= 600 && s < 700 }

func (s ResponseStatus) IsFinal() bool { return s >= 200 && s < 700 }

// IsFailure reports whether the status is a final non-2xx status.
func (s ResponseStatus) IsFailure() bool { return s >= 300 && s < 700 }

// IsAuthChallenge reports whether the status carries an authentication challenge (401 or 407).
func (s ResponseStatus) IsAuthChallenge() bool {
	return s == ResponseStatusUnauthorized || s == ResponseStatusProxyAuthenticationRequired
}

// IsBusy reports whether the status belongs to the busy/decline class
// collapsed to 480 when several branches report it.
func (s ResponseStatus) IsBusy() bool {
	return s == ResponseStatusBusyHere || s == ResponseStatusBusyEverywhere || s == ResponseStatusDecline
}

// Class returns the hundreds digit of the status.
func (s ResponseStatus) Class() uint { return uint(s) / 100 }

func (s ResponseStatus) Reason() ResponseReason {
	if r, ok := responseReasons[s]; ok {
		return r
	}
	return classReasons[s.Class()]
}

func (s ResponseStatus) String() string { return fmt.Sprintf("%d %s", uint(s), s.Reason()) }

// ResponseReason is a SIP response reason phrase.
type ResponseReason string

var classReasons = map[uint]ResponseReason{
	1: "Provisional",
	2: "Success",
	3: "Redirection",
	4: "Request Failure",
	5: "Server Failure",
	6: "Global Failure",
}

var responseReasons = map[ResponseStatus]ResponseReason{
	ResponseStatusTrying:          "Trying",
	ResponseStatusRinging:         "Ringing",
	ResponseStatusCallIsForwarded: "Call Is Being Forwarded",
	ResponseStatusQueued:          "Queued",
	ResponseStatusSessionProgress: "Session Progress",

	ResponseStatusOK:       "OK",
	ResponseStatusAccepted: "Accepted",

	ResponseStatusMultipleChoices:  "Multiple Choices",
	ResponseStatusMovedPermanently: "Moved Permanently",
	ResponseStatusMovedTemporarily: "Moved Temporarily",
	ResponseStatusUseProxy:         "Use Proxy",

	ResponseStatusBadRequest:                  "Bad Request",
	ResponseStatusUnauthorized:                "Unauthorized",
	ResponseStatusForbidden:                   "Forbidden",
	ResponseStatusNotFound:                    "Not Found",
	ResponseStatusMethodNotAllowed:            "Method Not Allowed",
	ResponseStatusProxyAuthenticationRequired: "Proxy Authentication Required",
	ResponseStatusRequestTimeout:              "Request Timeout",
	ResponseStatusGone:                        "Gone",
	ResponseStatusUnsupportedURIScheme:        "Unsupported URI Scheme",
	ResponseStatusTemporarilyUnavailable:      "Temporarily Unavailable",
	ResponseStatusCallTransactionDoesNotExist: "Call/Transaction Does Not Exist",
	ResponseStatusLoopDetected:                "Loop Detected",
	ResponseStatusTooManyHops:                 "Too Many Hops",
	ResponseStatusAddressIncomplete:           "Address Incomplete",
	ResponseStatusBusyHere:                    "Busy Here",
	ResponseStatusRequestTerminated:           "Request Terminated",
	ResponseStatusNotAcceptableHere:           "Not Acceptable Here",

	ResponseStatusServerInternalError: "Server Internal Error",
	ResponseStatusNotImplemented:      "Not Implemented",
	ResponseStatusBadGateway:          "Bad Gateway",
	ResponseStatusServiceUnavailable:  "Service Unavailable",
	ResponseStatusGatewayTimeout:      "Gateway Time-out",

	ResponseStatusBusyEverywhere:       "Busy Everywhere",
	ResponseStatusDecline:              "Decline",
	ResponseStatusDoesNotExistAnywhere: "Does Not Exist Anywhere",
	ResponseStatusNotAcceptable606:     "Not Acceptable",
}
