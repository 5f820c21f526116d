package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Gestão Docs API",
        "description": "Protocolled documents, realtime sector chat and multi-stage bidding processes.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Counters",
            "description": "Per-scope sequential numbering"
        },
        {
            "name": "Documents",
            "description": "Protocolled administrative documents"
        },
        {
            "name": "Chat",
            "description": "Direct and sector conversations"
        },
        {
            "name": "Attachments",
            "description": "Uploaded files and signed downloads"
        },
        {
            "name": "Biddings",
            "description": "Multi-stage bidding processes"
        },
        {
            "name": "Metrics",
            "description": "Operational metrics"
        }
    ],
    "paths": {
        "/counters/{category}/{year}/peek": {
            "get": {
                "tags": [
                    "Counters"
                ],
                "summary": "Preview the next counter value",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "category",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "year",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    }
                ]
            }
        },
        "/counters/{category}/{year}/increment": {
            "post": {
                "tags": [
                    "Counters"
                ],
                "summary": "Reserve the next counter value",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Counter unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "category",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "year",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    }
                ]
            }
        },
        "/documents": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "List protocolled documents",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "sectorId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "kind",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            },
            "post": {
                "tags": [
                    "Documents"
                ],
                "summary": "Issue a protocolled document",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Protocol could not be allocated",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateDocumentRequest"
                        }
                    }
                ]
            }
        },
        "/documents/preview": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Preview the next protocol",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "kind",
                        "in": "query",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "sectorId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            }
        },
        "/documents/register.csv": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Download the protocol register",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "sectorId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "year",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "kind",
                        "in": "query",
                        "type": "string",
                        "required": false
                    }
                ]
            }
        },
        "/documents/{id}": {
            "get": {
                "tags": [
                    "Documents"
                ],
                "summary": "Get a protocolled document",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/chat/messages": {
            "get": {
                "tags": [
                    "Chat"
                ],
                "summary": "Conversation history",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "type",
                        "in": "query",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "id",
                        "in": "query",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            },
            "post": {
                "tags": [
                    "Chat"
                ],
                "summary": "Send a message",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SendMessageRequest"
                        }
                    }
                ]
            }
        },
        "/chat/messages/{id}": {
            "delete": {
                "tags": [
                    "Chat"
                ],
                "summary": "Delete an own message",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "204": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/chat/unread": {
            "get": {
                "tags": [
                    "Chat"
                ],
                "summary": "Unread message count",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/chat/ws": {
            "get": {
                "tags": [
                    "Chat"
                ],
                "summary": "Realtime chat session (websocket)",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "101": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "access_token",
                        "in": "query",
                        "type": "string",
                        "required": false
                    }
                ]
            }
        },
        "/attachments": {
            "post": {
                "tags": [
                    "Attachments"
                ],
                "summary": "Upload an attachment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "file",
                        "in": "formData",
                        "type": "file",
                        "required": true
                    }
                ]
            }
        },
        "/files/{token}": {
            "get": {
                "tags": [
                    "Attachments"
                ],
                "summary": "Download a stored file via signed token",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "produces": [
                    "application/octet-stream"
                ],
                "responses": {
                    "200": {
                        "description": "File"
                    },
                    "403": {
                        "description": "Invalid or expired link"
                    }
                }
            }
        },
        "/biddings": {
            "get": {
                "tags": [
                    "Biddings"
                ],
                "summary": "List bidding processes",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "sectorId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ]
            },
            "post": {
                "tags": [
                    "Biddings"
                ],
                "summary": "Open a bidding process",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateBiddingRequest"
                        }
                    }
                ]
            }
        },
        "/biddings/{id}": {
            "get": {
                "tags": [
                    "Biddings"
                ],
                "summary": "Get a bidding process",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/biddings/{id}/body": {
            "put": {
                "tags": [
                    "Biddings"
                ],
                "summary": "Edit the current stage body",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Stale version",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateStageBodyRequest"
                        }
                    }
                ]
            }
        },
        "/biddings/{id}/signatures": {
            "post": {
                "tags": [
                    "Biddings"
                ],
                "summary": "Add a signer to the current stage",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AddSignatureRequest"
                        }
                    }
                ]
            }
        },
        "/biddings/{id}/advance": {
            "post": {
                "tags": [
                    "Biddings"
                ],
                "summary": "Finalize the current stage and open the next",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AdvanceStageRequest"
                        }
                    }
                ]
            }
        },
        "/biddings/{id}/stages/{index}": {
            "get": {
                "tags": [
                    "Biddings"
                ],
                "summary": "View one stage",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "index",
                        "in": "path",
                        "type": "integer",
                        "required": true
                    }
                ]
            }
        },
        "/biddings/{id}/status": {
            "patch": {
                "tags": [
                    "Biddings"
                ],
                "summary": "Change the process status",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateBiddingStatusRequest"
                        }
                    }
                ]
            }
        },
        "/biddings/{id}/export": {
            "post": {
                "tags": [
                    "Biddings"
                ],
                "summary": "Render the process to PDF",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ]
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": [
                    "Metrics"
                ],
                "summary": "Metrics summary",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "CreateDocumentRequest": {
            "type": "object",
            "required": [
                "kind"
            ],
            "properties": {
                "kind": {
                    "type": "string",
                    "enum": [
                        "OFICIO",
                        "PURCHASE_REQUEST",
                        "PER_DIEM",
                        "SERVICE_ORDER",
                        "MEMO"
                    ]
                },
                "sectorId": {
                    "type": "string"
                },
                "year": {
                    "type": "integer"
                },
                "content": {
                    "type": "object"
                }
            }
        },
        "ConversationSelector": {
            "type": "object",
            "required": [
                "type",
                "id"
            ],
            "properties": {
                "type": {
                    "type": "string",
                    "enum": [
                        "user",
                        "sector"
                    ]
                },
                "id": {
                    "type": "string"
                },
                "displayName": {
                    "type": "string"
                }
            }
        },
        "Attachment": {
            "type": "object",
            "properties": {
                "url": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "mimeType": {
                    "type": "string"
                }
            }
        },
        "SendMessageRequest": {
            "type": "object",
            "required": [
                "selector"
            ],
            "properties": {
                "selector": {
                    "$ref": "#/definitions/ConversationSelector"
                },
                "body": {
                    "type": "string"
                },
                "attachment": {
                    "$ref": "#/definitions/Attachment"
                }
            }
        },
        "CreateBiddingRequest": {
            "type": "object",
            "required": [
                "title"
            ],
            "properties": {
                "title": {
                    "type": "string"
                },
                "sectorId": {
                    "type": "string"
                },
                "initialStageTitle": {
                    "type": "string"
                },
                "initialStageBody": {
                    "type": "string"
                }
            }
        },
        "UpdateStageBodyRequest": {
            "type": "object",
            "required": [
                "version"
            ],
            "properties": {
                "body": {
                    "type": "string"
                },
                "version": {
                    "type": "integer"
                }
            }
        },
        "Signature": {
            "type": "object",
            "required": [
                "name"
            ],
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "role": {
                    "type": "string"
                },
                "sector": {
                    "type": "string"
                }
            }
        },
        "AddSignatureRequest": {
            "type": "object",
            "required": [
                "signature",
                "version"
            ],
            "properties": {
                "signature": {
                    "$ref": "#/definitions/Signature"
                },
                "version": {
                    "type": "integer"
                }
            }
        },
        "AdvanceStageRequest": {
            "type": "object",
            "required": [
                "nextTitle",
                "version"
            ],
            "properties": {
                "nextTitle": {
                    "type": "string"
                },
                "version": {
                    "type": "integer"
                }
            }
        },
        "UpdateBiddingStatusRequest": {
            "type": "object",
            "required": [
                "status",
                "version"
            ],
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "DRAFT",
                        "IN_PROGRESS",
                        "APPROVED",
                        "COMPLETED",
                        "CANCELLED"
                    ]
                },
                "version": {
                    "type": "integer"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
