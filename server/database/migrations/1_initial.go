package dbmigs

import (
	"github.com/go-pg/migrations/v8"
)

func init() {
	migrations.MustRegisterTx(func(db migrations.DB) error {
		_, err := db.Exec(`
            -- Managed Kea DHCP server instances.
            CREATE TABLE dhcp_server (
                id BIGSERIAL PRIMARY KEY,
                created_at TIMESTAMP WITHOUT TIME ZONE NOT NULL DEFAULT timezone('utc', now()),
                name TEXT NOT NULL,
                address TEXT NOT NULL,
                port BIGINT NOT NULL DEFAULT 8000,
                active BOOLEAN NOT NULL DEFAULT TRUE,
                CONSTRAINT dhcp_server_name_unique UNIQUE (name)
            );

            -- Vendor option spaces identified by the IANA enterprise id.
            CREATE TABLE vendor_option_space (
                id BIGSERIAL PRIMARY KEY,
                name TEXT NOT NULL,
                enterprise_id BIGINT,
                CONSTRAINT vendor_option_space_name_unique UNIQUE (name)
            );

            -- Custom DHCP option definitions (Kea option-def).
            CREATE TABLE option_definition (
                id BIGSERIAL PRIMARY KEY,
                name TEXT NOT NULL,
                code BIGINT NOT NULL,
                option_type TEXT NOT NULL DEFAULT 'string',
                option_space TEXT NOT NULL DEFAULT 'dhcp4',
                vendor_option_space_id BIGINT REFERENCES vendor_option_space (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                is_array BOOLEAN NOT NULL DEFAULT FALSE,
                encapsulate TEXT NOT NULL DEFAULT '',
                record_types TEXT NOT NULL DEFAULT '',
                standard BOOLEAN NOT NULL DEFAULT FALSE
            );

            -- A definition is unique within its effective option space.
            CREATE UNIQUE INDEX option_definition_space_code_name_unique_idx
                ON option_definition (COALESCE(vendor_option_space_id, 0), option_space, code, name);

            -- DHCP option values (Kea option-data).
            CREATE TABLE option_data (
                id BIGSERIAL PRIMARY KEY,
                name TEXT NOT NULL,
                option_definition_id BIGINT REFERENCES option_definition (id)
                    ON UPDATE CASCADE ON DELETE RESTRICT,
                option_space TEXT NOT NULL DEFAULT 'dhcp4',
                vendor_option_space_id BIGINT REFERENCES vendor_option_space (id)
                    ON UPDATE CASCADE ON DELETE RESTRICT,
                delivery_type TEXT NOT NULL DEFAULT 'standard',
                value TEXT NOT NULL,
                always_send BOOLEAN NOT NULL DEFAULT FALSE,
                csv_format BOOLEAN NOT NULL DEFAULT TRUE,
                CONSTRAINT option_data_name_unique UNIQUE (name)
            );

            -- Client classification rules. The test expression is opaque
            -- to Roost and forwarded to Kea verbatim.
            CREATE TABLE client_class (
                id BIGSERIAL PRIMARY KEY,
                name TEXT NOT NULL,
                test_expression TEXT NOT NULL,
                local_definitions BOOLEAN NOT NULL DEFAULT FALSE,
                next_server TEXT NOT NULL DEFAULT '',
                server_hostname TEXT NOT NULL DEFAULT '',
                boot_file_name TEXT NOT NULL DEFAULT '',
                CONSTRAINT client_class_name_unique UNIQUE (name)
            );

            CREATE TABLE client_class_to_option_data (
                client_class_id BIGINT NOT NULL REFERENCES client_class (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                option_data_id BIGINT NOT NULL REFERENCES option_data (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                order_index BIGINT NOT NULL DEFAULT 0,
                CONSTRAINT client_class_to_option_data_pkey
                    PRIMARY KEY (client_class_id, option_data_id)
            );

            -- Server-level (global) associations.
            CREATE TABLE dhcp_server_to_client_class (
                dhcp_server_id BIGINT NOT NULL REFERENCES dhcp_server (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                client_class_id BIGINT NOT NULL REFERENCES client_class (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                order_index BIGINT NOT NULL DEFAULT 0,
                CONSTRAINT dhcp_server_to_client_class_pkey
                    PRIMARY KEY (dhcp_server_id, client_class_id)
            );

            CREATE TABLE dhcp_server_to_option_data (
                dhcp_server_id BIGINT NOT NULL REFERENCES dhcp_server (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                option_data_id BIGINT NOT NULL REFERENCES option_data (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                order_index BIGINT NOT NULL DEFAULT 0,
                CONSTRAINT dhcp_server_to_option_data_pkey
                    PRIMARY KEY (dhcp_server_id, option_data_id)
            );

            -- Per-prefix DHCP configuration (Kea subnet). A prefix has at
            -- most one configuration within a routing domain.
            CREATE TABLE prefix_config (
                id BIGSERIAL PRIMARY KEY,
                created_at TIMESTAMP WITHOUT TIME ZONE NOT NULL DEFAULT timezone('utc', now()),
                prefix TEXT NOT NULL,
                routing_domain TEXT,
                dhcp_server_id BIGINT NOT NULL REFERENCES dhcp_server (id)
                    ON UPDATE CASCADE ON DELETE RESTRICT,
                pool BOOLEAN NOT NULL DEFAULT TRUE,
                valid_lifetime BIGINT NOT NULL DEFAULT 3600,
                max_lifetime BIGINT NOT NULL DEFAULT 7200,
                routers_option_offset BIGINT NOT NULL DEFAULT 1,
                CONSTRAINT prefix_config_lifetimes_check
                    CHECK (max_lifetime >= valid_lifetime)
            );

            CREATE UNIQUE INDEX prefix_config_prefix_unique_idx
                ON prefix_config (prefix, COALESCE(routing_domain, ''));

            CREATE TABLE prefix_config_to_option_data (
                prefix_config_id BIGINT NOT NULL REFERENCES prefix_config (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                option_data_id BIGINT NOT NULL REFERENCES option_data (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                order_index BIGINT NOT NULL DEFAULT 0,
                CONSTRAINT prefix_config_to_option_data_pkey
                    PRIMARY KEY (prefix_config_id, option_data_id)
            );

            CREATE TABLE prefix_config_to_client_class (
                prefix_config_id BIGINT NOT NULL REFERENCES prefix_config (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                client_class_id BIGINT NOT NULL REFERENCES client_class (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                order_index BIGINT NOT NULL DEFAULT 0,
                CONSTRAINT prefix_config_to_client_class_pkey
                    PRIMARY KEY (prefix_config_id, client_class_id)
            );

            -- High availability relationships and their peers.
            CREATE TABLE ha_relationship (
                id BIGSERIAL PRIMARY KEY,
                name TEXT NOT NULL,
                mode TEXT NOT NULL DEFAULT 'hot-standby',
                heartbeat_delay BIGINT NOT NULL DEFAULT 10000,
                max_response_delay BIGINT NOT NULL DEFAULT 60000,
                max_ack_delay BIGINT NOT NULL DEFAULT 5000,
                max_unacked_clients BIGINT NOT NULL DEFAULT 5,
                max_rejected_lease_updates BIGINT NOT NULL DEFAULT 10,
                multi_threading BOOLEAN NOT NULL DEFAULT TRUE,
                http_dedicated_listener BOOLEAN NOT NULL DEFAULT TRUE,
                http_listener_threads BIGINT NOT NULL DEFAULT 4,
                http_client_threads BIGINT NOT NULL DEFAULT 4,
                CONSTRAINT ha_relationship_name_unique UNIQUE (name)
            );

            CREATE TABLE ha_peer (
                id BIGSERIAL PRIMARY KEY,
                ha_relationship_id BIGINT NOT NULL REFERENCES ha_relationship (id)
                    ON UPDATE CASCADE ON DELETE CASCADE,
                dhcp_server_id BIGINT NOT NULL REFERENCES dhcp_server (id)
                    ON UPDATE CASCADE ON DELETE RESTRICT,
                role TEXT NOT NULL,
                url TEXT NOT NULL DEFAULT '',
                auto_failover BOOLEAN NOT NULL DEFAULT TRUE,
                order_index BIGINT NOT NULL DEFAULT 0,
                CONSTRAINT ha_peer_membership_unique
                    UNIQUE (ha_relationship_id, dhcp_server_id)
            );

            -- Store-level backing of the single-primary invariant. The
            -- transactional guards return friendlier errors before this
            -- index is ever hit.
            CREATE UNIQUE INDEX ha_peer_single_primary_unique_idx
                ON ha_peer (ha_relationship_id) WHERE role = 'primary';
        `)
		return err
	}, func(db migrations.DB) error {
		_, err := db.Exec(`
            DROP TABLE IF EXISTS ha_peer;
            DROP TABLE IF EXISTS ha_relationship;
            DROP TABLE IF EXISTS prefix_config_to_client_class;
            DROP TABLE IF EXISTS prefix_config_to_option_data;
            DROP TABLE IF EXISTS prefix_config;
            DROP TABLE IF EXISTS dhcp_server_to_option_data;
            DROP TABLE IF EXISTS dhcp_server_to_client_class;
            DROP TABLE IF EXISTS client_class_to_option_data;
            DROP TABLE IF EXISTS client_class;
            DROP TABLE IF EXISTS option_data;
            DROP TABLE IF EXISTS option_definition;
            DROP TABLE IF EXISTS vendor_option_space;
            DROP TABLE IF EXISTS dhcp_server;
        `)
		return err
	})
}
